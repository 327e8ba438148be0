// Package reports builds financial statements from posted ledger lines.
package reports

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
)

// ErrInvalidRange is returned when a report window ends before it starts.
var ErrInvalidRange = errors.New("reports: from must not be after to")

// AccountActivity is the debit and credit total of one account over a window.
type AccountActivity struct {
	Code          string               `json:"code"`
	Name          string               `json:"name"`
	Type          ledger.AccountType   `json:"type"`
	NormalBalance ledger.NormalBalance `json:"normalBalance"`
	Debit         decimal.Decimal      `json:"debit"`
	Credit        decimal.Decimal      `json:"credit"`
}

// Balance returns the net balance on the account's normal side.
func (a AccountActivity) Balance() decimal.Decimal {
	return a.NormalBalance.Signed(a.Debit, a.Credit)
}

// ActivityQuery selects ledger lines dated in [From, To]. A zero From means from the beginning.
type ActivityQuery struct {
	TenantID string
	From     time.Time
	To       time.Time
	// ExcludeReference drops lines of entries with this reference type.
	ExcludeReference ledger.ReferenceType
}

// CashLine is one posting against a cash account.
type CashLine struct {
	EntryNumber     string               `json:"entryNumber"`
	AccountCode     string               `json:"accountCode"`
	Description     string               `json:"description"`
	TransactionDate time.Time            `json:"date"`
	ReferenceType   ledger.ReferenceType `json:"referenceType"`
	Debit           decimal.Decimal      `json:"debit"`
	Credit          decimal.Decimal      `json:"credit"`
}

// Net is the cash effect of the line.
func (l CashLine) Net() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}

// TrialBalanceRow places an account balance on its debit or credit column.
type TrialBalanceRow struct {
	Code   string             `json:"accountCode"`
	Name   string             `json:"accountName"`
	Type   ledger.AccountType `json:"accountType"`
	Debit  decimal.Decimal    `json:"debitAmount"`
	Credit decimal.Decimal    `json:"creditAmount"`
}

// TrialBalance lists every non-zero account as of a date.
type TrialBalance struct {
	TenantID     string            `json:"tenantId"`
	AsOf         time.Time         `json:"asOfDate"`
	Accounts     []TrialBalanceRow `json:"accounts"`
	TotalDebits  decimal.Decimal   `json:"totalDebits"`
	TotalCredits decimal.Decimal   `json:"totalCredits"`
	IsBalanced   bool              `json:"isBalanced"`
}

// StatementLine is one account on a statement.
type StatementLine struct {
	Code    string          `json:"accountCode"`
	Name    string          `json:"accountName"`
	Balance decimal.Decimal `json:"balance"`
}

// Section groups statement lines with their total.
type Section struct {
	Accounts []StatementLine `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

func (s *Section) add(line StatementLine) {
	s.Accounts = append(s.Accounts, line)
	s.Total = s.Total.Add(line.Balance)
}

// ClassifiedSection splits a balance sheet side into current and non-current.
type ClassifiedSection struct {
	Current    Section         `json:"current"`
	NonCurrent Section         `json:"nonCurrent"`
	Total      decimal.Decimal `json:"total"`
}

// BalanceSheet reports assets, liabilities and equity as of a date.
// Equity includes earnings not yet swept by a period close.
type BalanceSheet struct {
	TenantID                  string            `json:"tenantId"`
	AsOf                      time.Time         `json:"asOfDate"`
	Assets                    ClassifiedSection `json:"assets"`
	Liabilities               ClassifiedSection `json:"liabilities"`
	Equity                    Section           `json:"equity"`
	CurrentEarnings           decimal.Decimal   `json:"currentEarnings"`
	TotalLiabilitiesAndEquity decimal.Decimal   `json:"totalLiabilitiesAndEquity"`
	IsBalanced                bool              `json:"isBalanced"`
}

// ProfitAndLoss reports revenue and expenses over a window.
type ProfitAndLoss struct {
	TenantID    string          `json:"tenantId"`
	From        time.Time       `json:"startDate"`
	To          time.Time       `json:"endDate"`
	Revenue     Section         `json:"revenue"`
	Expenses    Section         `json:"expenses"`
	GrossProfit decimal.Decimal `json:"grossProfit"`
	NetIncome   decimal.Decimal `json:"netIncome"`
}

// CashActivity categorises one cash movement.
type CashActivity struct {
	EntryNumber string          `json:"entryNumber"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
}

// CashCategory is one of operating, investing or financing.
type CashCategory struct {
	Activities []CashActivity  `json:"activities"`
	Total      decimal.Decimal `json:"total"`
}

// CashFlow reports cash movements over a window.
type CashFlow struct {
	TenantID      string          `json:"tenantId"`
	From          time.Time       `json:"startDate"`
	To            time.Time       `json:"endDate"`
	Operating     CashCategory    `json:"operating"`
	Investing     CashCategory    `json:"investing"`
	Financing     CashCategory    `json:"financing"`
	NetCashFlow   decimal.Decimal `json:"netCashFlow"`
	BeginningCash decimal.Decimal `json:"beginningCash"`
	EndingCash    decimal.Decimal `json:"endingCash"`
}

// Ratios are derived from the balance sheet and the year-to-date P&L.
type Ratios struct {
	TenantID         string          `json:"tenantId"`
	AsOf             time.Time       `json:"asOfDate"`
	CurrentRatio     decimal.Decimal `json:"currentRatio"`
	DebtToEquity     decimal.Decimal `json:"debtToEquityRatio"`
	WorkingCapital   decimal.Decimal `json:"workingCapital"`
	TotalAssets      decimal.Decimal `json:"totalAssets"`
	TotalLiabilities decimal.Decimal `json:"totalLiabilities"`
	TotalEquity      decimal.Decimal `json:"totalEquity"`
	GrossMargin      decimal.Decimal `json:"grossMargin"`
	NetMargin        decimal.Decimal `json:"netMargin"`
}
