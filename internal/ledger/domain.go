package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Nominal reports whether balances of this type are swept at period close.
func (t AccountType) Nominal() bool {
	return t == AccountTypeRevenue || t == AccountTypeExpense
}

// NormalBalance is the side on which an account naturally increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Signed turns raw debit/credit totals into a balance on the account's normal side.
func (n NormalBalance) Signed(debit, credit decimal.Decimal) decimal.Decimal {
	if n == NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// EntryStatus enumerates journal entry states.
type EntryStatus string

const (
	EntryStatusApproved EntryStatus = "APPROVED"
	EntryStatusPosted   EntryStatus = "POSTED"
)

// ReferenceType tags the business origin of an entry.
type ReferenceType string

const (
	RefManual          ReferenceType = "MANUAL"
	RefWave            ReferenceType = "WAVE"
	RefPick            ReferenceType = "PICK"
	RefPack            ReferenceType = "PACK"
	RefShipment        ReferenceType = "SHIPMENT"
	RefInventory       ReferenceType = "INVENTORY_RECEIPT"
	RefAdjustment      ReferenceType = "INVENTORY_ADJUSTMENT"
	RefStockMovement   ReferenceType = "STOCK_MOVEMENT"
	RefMaintenance     ReferenceType = "MAINTENANCE"
	RefDepreciation    ReferenceType = "DEPRECIATION"
	RefUtility         ReferenceType = "UTILITY"
	RefPurchase        ReferenceType = "PURCHASE"
	RefSupplierInvoice ReferenceType = "SUPPLIER_INVOICE"
	RefPayment         ReferenceType = "PAYMENT"
	RefPeriodClose     ReferenceType = "PERIOD_CLOSE"
)

// Account models a chart of accounts node.
type Account struct {
	ID            int64         `json:"id"`
	TenantID      string        `json:"tenantId"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Type          AccountType   `json:"type"`
	NormalBalance NormalBalance `json:"normalBalance"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// JournalEntry is one balanced accounting transaction.
type JournalEntry struct {
	ID              int64           `json:"id"`
	TenantID        string          `json:"tenantId"`
	Number          string          `json:"entryNumber"`
	Sequence        int64           `json:"sequence"`
	Description     string          `json:"description"`
	TransactionDate time.Time       `json:"transactionDate"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          EntryStatus     `json:"status"`
	ReferenceType   ReferenceType   `json:"referenceType"`
	ReferenceID     string          `json:"referenceId,omitempty"`
	CreatedBy       string          `json:"createdBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	Lines           []LedgerLine    `json:"lines"`
}

// LedgerLine is one debit or credit row. The unused side is zero.
type LedgerLine struct {
	ID              int64           `json:"id"`
	EntryID         int64           `json:"journalEntryId"`
	LineNo          int             `json:"lineNo"`
	AccountID       int64           `json:"accountId"`
	AccountCode     string          `json:"accountCode"`
	Debit           decimal.Decimal `json:"debitAmount"`
	Credit          decimal.Decimal `json:"creditAmount"`
	Description     string          `json:"description"`
	TransactionDate time.Time       `json:"transactionDate"`
	ReferenceType   ReferenceType   `json:"referenceType"`
	ReferenceID     string          `json:"referenceId,omitempty"`
}

// Posting proposes one line against an account code.
type Posting struct {
	AccountCode string          `json:"accountCode" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// Debit builds a debit posting.
func Debit(code string, amount decimal.Decimal) Posting {
	return Posting{AccountCode: code, Debit: amount}
}

// Credit builds a credit posting.
func Credit(code string, amount decimal.Decimal) Posting {
	return Posting{AccountCode: code, Credit: amount}
}

// SourceKey links an entry to the operational event that produced it.
type SourceKey struct {
	Name string
	Key  uuid.UUID
}

// PeriodRef identifies the reporting period that rejected a posting.
type PeriodRef struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// EntryInput groups fields required to create a journal entry.
type EntryInput struct {
	TenantID        string
	Description     string
	TransactionDate time.Time
	ReferenceType   ReferenceType
	ReferenceID     string
	Status          EntryStatus
	CreatedBy       string
	Postings        []Posting
	Source          *SourceKey
}

// Validate enforces the double-entry shape before anything is written.
func (in EntryInput) Validate() error {
	if strings.TrimSpace(in.TenantID) == "" {
		return fmt.Errorf("%w: tenant required", ErrValidation)
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: description required", ErrValidation)
	}
	if in.TransactionDate.IsZero() {
		return fmt.Errorf("%w: transaction date required", ErrValidation)
	}
	if len(in.Postings) < 2 {
		return ErrTooFewLines
	}
	for i, p := range in.Postings {
		if strings.TrimSpace(p.AccountCode) == "" {
			return fmt.Errorf("%w: line %d account code required", ErrInvalidPosting, i+1)
		}
		if p.Debit.IsNegative() || p.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d amount must be positive", ErrInvalidPosting, i+1)
		}
		if p.Debit.IsPositive() == p.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d needs exactly one of debit or credit", ErrInvalidPosting, i+1)
		}
	}
	debit, credit := in.Totals()
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// Totals sums debit and credit sides.
func (in EntryInput) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, p := range in.Postings {
		debit = debit.Add(p.Debit)
		credit = credit.Add(p.Credit)
	}
	return debit, credit
}

// normalized rounds amounts to cents, trims codes and defaults status and reference type.
func (in EntryInput) normalized() EntryInput {
	out := in
	out.Postings = make([]Posting, len(in.Postings))
	for i, p := range in.Postings {
		p.AccountCode = strings.TrimSpace(p.AccountCode)
		p.Debit = Cents(p.Debit)
		p.Credit = Cents(p.Credit)
		out.Postings[i] = p
	}
	if out.Status == "" {
		out.Status = EntryStatusPosted
	}
	if out.ReferenceType == "" {
		out.ReferenceType = RefManual
	}
	out.TransactionDate = DateOnly(in.TransactionDate)
	return out
}

func (in EntryInput) accountCodes() []string {
	seen := make(map[string]struct{}, len(in.Postings))
	codes := make([]string, 0, len(in.Postings))
	for _, p := range in.Postings {
		if _, ok := seen[p.AccountCode]; ok {
			continue
		}
		seen[p.AccountCode] = struct{}{}
		codes = append(codes, p.AccountCode)
	}
	return codes
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
