package reports

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/ledger/ledgertest"
)

// ledgerRepo aggregates entries held by the in-memory ledger store.
type ledgerRepo struct {
	store *ledgertest.Store
	calls atomic.Int32
	fail  error
}

func within(date, from, to time.Time) bool {
	if !from.IsZero() && date.Before(from) {
		return false
	}
	return !date.After(to)
}

func (r *ledgerRepo) AccountActivity(ctx context.Context, q ActivityQuery) ([]AccountActivity, error) {
	r.calls.Add(1)
	if r.fail != nil {
		return nil, r.fail
	}
	accounts, err := r.store.ListAccounts(ctx, q.TenantID)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*AccountActivity, len(accounts))
	out := make([]AccountActivity, len(accounts))
	for i, a := range accounts {
		out[i] = AccountActivity{Code: a.Code, Name: a.Name, Type: a.Type, NormalBalance: a.NormalBalance}
		byCode[a.Code] = &out[i]
	}
	for _, e := range r.store.Entries(q.TenantID) {
		if q.ExcludeReference != "" && e.ReferenceType == q.ExcludeReference {
			continue
		}
		if !within(e.TransactionDate, q.From, q.To) {
			continue
		}
		for _, l := range e.Lines {
			acc := byCode[l.AccountCode]
			acc.Debit = acc.Debit.Add(l.Debit)
			acc.Credit = acc.Credit.Add(l.Credit)
		}
	}
	return out, nil
}

func (r *ledgerRepo) CashLines(_ context.Context, tenantID string, codes []string, from, to time.Time) ([]CashLine, error) {
	r.calls.Add(1)
	var out []CashLine
	for _, e := range r.store.Entries(tenantID) {
		if !within(e.TransactionDate, from, to) {
			continue
		}
		for _, l := range e.Lines {
			if !slices.Contains(codes, l.AccountCode) {
				continue
			}
			out = append(out, CashLine{
				EntryNumber: e.Number, AccountCode: l.AccountCode, Description: e.Description,
				TransactionDate: e.TransactionDate, ReferenceType: e.ReferenceType, Debit: l.Debit, Credit: l.Credit,
			})
		}
	}
	return out, nil
}

func (r *ledgerRepo) CashBalance(_ context.Context, tenantID string, codes []string, before time.Time) (decimal.Decimal, error) {
	r.calls.Add(1)
	total := decimal.Zero
	for _, e := range r.store.Entries(tenantID) {
		if !e.TransactionDate.Before(before) {
			continue
		}
		for _, l := range e.Lines {
			if slices.Contains(codes, l.AccountCode) {
				total = total.Add(l.Debit).Sub(l.Credit)
			}
		}
	}
	return total, nil
}

var _ Repository = (*ledgerRepo)(nil)

func jan(day int) time.Time { return time.Date(2025, time.January, day, 0, 0, 0, 0, time.UTC) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// januaryBook is a month of warehouse activity:
// cash 13080, inventory 600, equipment 3000 less 50 depreciation,
// payables 1120, sales tax 80, loan 5000, owner equity 10000, earnings 430.
var januaryBook = []ledger.EntryInput{
	{Description: "Owner equity contribution", TransactionDate: jan(5), Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeCash, d("10000")), ledger.Credit(ledger.CodeOwnersEquity, d("10000"))}},
	{Description: "Inventory received - Receipt R1", TransactionDate: jan(8), ReferenceType: ledger.RefInventory, Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeInventory, d("1000")), ledger.Credit(ledger.CodeAccountsPayable, d("1000"))}},
	{Description: "Revenue recognition - Shipment S1", TransactionDate: jan(10), ReferenceType: ledger.RefShipment, Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeAccountsReceivable, d("1080")),
		ledger.Credit(ledger.CodeTransportationRevenue, d("1000")),
		ledger.Credit(ledger.CodeSalesTaxPayable, d("80"))}},
	{Description: "Equipment purchase - forklift", TransactionDate: jan(12), Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeEquipment, d("3000")), ledger.Credit(ledger.CodeCash, d("3000"))}},
	{Description: "Customer payment C1", TransactionDate: jan(15), ReferenceType: ledger.RefPayment, Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeCash, d("1080")), ledger.Credit(ledger.CodeAccountsReceivable, d("1080"))}},
	{Description: "Cost of Goods Sold - Movement M1", TransactionDate: jan(20), ReferenceType: ledger.RefStockMovement, Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeCOGS, d("400")), ledger.Credit(ledger.CodeInventory, d("400"))}},
	{Description: "Utility bill (ELECTRICITY)", TransactionDate: jan(25), ReferenceType: ledger.RefUtility, Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeUtilities, d("120")), ledger.Credit(ledger.CodeAccountsPayable, d("120"))}},
	{Description: "Bank loan proceeds", TransactionDate: jan(28), Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeCash, d("5000")), ledger.Credit(ledger.CodeLongTermDebt, d("5000"))}},
	{Description: "Depreciation - Asset FL-1 2025-01", TransactionDate: jan(31), ReferenceType: ledger.RefDepreciation, Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeDepreciationExpense, d("50")), ledger.Credit(ledger.CodeAccumulatedDepreciation, d("50"))}},
}

// januaryClose sweeps January's revenue and expenses into retained earnings.
var januaryClose = ledger.EntryInput{
	Description: "Period close - January 2025", TransactionDate: jan(31), ReferenceType: ledger.RefPeriodClose,
	Postings: []ledger.Posting{
		ledger.Debit(ledger.CodeTransportationRevenue, d("1000")),
		ledger.Credit(ledger.CodeCOGS, d("400")),
		ledger.Credit(ledger.CodeUtilities, d("120")),
		ledger.Credit(ledger.CodeDepreciationExpense, d("50")),
		ledger.Credit(ledger.CodeRetainedEarnings, d("430")),
	},
}
