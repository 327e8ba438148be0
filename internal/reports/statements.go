package reports

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
)

// CashAccounts are the codes whose movements make up the cash flow statement.
var CashAccounts = []string{ledger.CodeCash, ledger.CodePettyCash}

const ratioPlaces = 4

// Current assets sit below Equipment, current liabilities below Long-Term Debt.
func isCurrentAsset(code string) bool     { return code < ledger.CodeEquipment }
func isCurrentLiability(code string) bool { return code < ledger.CodeLongTermDebt }

func sortedByCode(accounts []AccountActivity) []AccountActivity {
	out := append([]AccountActivity(nil), accounts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// BuildTrialBalance places each non-zero balance on its natural column.
// A contra balance lands on the opposite column.
func BuildTrialBalance(tenantID string, asOf time.Time, accounts []AccountActivity) TrialBalance {
	tb := TrialBalance{TenantID: tenantID, AsOf: asOf, Accounts: []TrialBalanceRow{}}
	for _, acc := range sortedByCode(accounts) {
		balance := acc.Balance()
		if balance.IsZero() {
			continue
		}
		debitSide := (acc.NormalBalance == ledger.NormalDebit) == !balance.IsNegative()
		row := TrialBalanceRow{Code: acc.Code, Name: acc.Name, Type: acc.Type}
		if debitSide {
			row.Debit = balance.Abs()
		} else {
			row.Credit = balance.Abs()
		}
		tb.Accounts = append(tb.Accounts, row)
		tb.TotalDebits = tb.TotalDebits.Add(row.Debit)
		tb.TotalCredits = tb.TotalCredits.Add(row.Credit)
	}
	tb.IsBalanced = ledger.Balanced(tb.TotalDebits, tb.TotalCredits)
	return tb
}

// BuildBalanceSheet classifies balances as of a date. Assets are reported debit-positive so
// contra accounts such as accumulated depreciation reduce the total; liabilities and equity
// are credit-positive. Unswept revenue and expense balances appear as current earnings.
func BuildBalanceSheet(tenantID string, asOf time.Time, accounts []AccountActivity) BalanceSheet {
	bs := BalanceSheet{TenantID: tenantID, AsOf: asOf}
	for _, acc := range sortedByCode(accounts) {
		debitNet := acc.Debit.Sub(acc.Credit)
		if debitNet.IsZero() {
			continue
		}
		switch acc.Type {
		case ledger.AccountTypeAsset:
			line := StatementLine{Code: acc.Code, Name: acc.Name, Balance: debitNet}
			if isCurrentAsset(acc.Code) {
				bs.Assets.Current.add(line)
			} else {
				bs.Assets.NonCurrent.add(line)
			}
		case ledger.AccountTypeLiability:
			line := StatementLine{Code: acc.Code, Name: acc.Name, Balance: debitNet.Neg()}
			if isCurrentLiability(acc.Code) {
				bs.Liabilities.Current.add(line)
			} else {
				bs.Liabilities.NonCurrent.add(line)
			}
		case ledger.AccountTypeEquity:
			bs.Equity.add(StatementLine{Code: acc.Code, Name: acc.Name, Balance: debitNet.Neg()})
		case ledger.AccountTypeRevenue, ledger.AccountTypeExpense:
			bs.CurrentEarnings = bs.CurrentEarnings.Sub(debitNet)
		}
	}
	bs.Assets.Total = bs.Assets.Current.Total.Add(bs.Assets.NonCurrent.Total)
	bs.Liabilities.Total = bs.Liabilities.Current.Total.Add(bs.Liabilities.NonCurrent.Total)
	bs.Equity.Total = bs.Equity.Total.Add(bs.CurrentEarnings)
	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total)
	bs.IsBalanced = ledger.Balanced(bs.Assets.Total, bs.TotalLiabilitiesAndEquity)
	return bs
}

// BuildProfitAndLoss reports revenue and expense activity. Gross profit deducts cost of goods sold only.
func BuildProfitAndLoss(tenantID string, from, to time.Time, accounts []AccountActivity) ProfitAndLoss {
	pl := ProfitAndLoss{TenantID: tenantID, From: from, To: to}
	cogs := decimal.Zero
	for _, acc := range sortedByCode(accounts) {
		switch acc.Type {
		case ledger.AccountTypeRevenue:
			amount := acc.Credit.Sub(acc.Debit)
			if !amount.IsZero() {
				pl.Revenue.add(StatementLine{Code: acc.Code, Name: acc.Name, Balance: amount})
			}
		case ledger.AccountTypeExpense:
			amount := acc.Debit.Sub(acc.Credit)
			if amount.IsZero() {
				continue
			}
			pl.Expenses.add(StatementLine{Code: acc.Code, Name: acc.Name, Balance: amount})
			if acc.Code == ledger.CodeCOGS {
				cogs = cogs.Add(amount)
			}
		}
	}
	pl.GrossProfit = pl.Revenue.Total.Sub(cogs)
	pl.NetIncome = pl.Revenue.Total.Sub(pl.Expenses.Total)
	return pl
}

type cashCategory int

const (
	operating cashCategory = iota
	investing
	financing
)

var (
	investingWords = []string{"equipment", "vehicle", "asset purchase"}
	financingWords = []string{"loan", "equity", "capital", "dividend"}
)

// categorize files a cash line by reference type first, then by description keywords.
func categorize(line CashLine) cashCategory {
	switch line.ReferenceType {
	case ledger.RefShipment, ledger.RefPayment, ledger.RefMaintenance, ledger.RefUtility, ledger.RefSupplierInvoice:
		return operating
	}
	desc := strings.ToLower(line.Description)
	for _, w := range investingWords {
		if strings.Contains(desc, w) {
			return investing
		}
	}
	for _, w := range financingWords {
		if strings.Contains(desc, w) {
			return financing
		}
	}
	return operating
}

// BuildCashFlow groups cash account movements. beginning is the cash balance before from.
func BuildCashFlow(tenantID string, from, to time.Time, beginning decimal.Decimal, lines []CashLine) CashFlow {
	cf := CashFlow{TenantID: tenantID, From: from, To: to, BeginningCash: beginning}
	ordered := append([]CashLine(nil), lines...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TransactionDate.Before(ordered[j].TransactionDate) })
	for _, line := range ordered {
		activity := CashActivity{EntryNumber: line.EntryNumber, Description: line.Description, Amount: line.Net(), Date: line.TransactionDate}
		var bucket *CashCategory
		switch categorize(line) {
		case investing:
			bucket = &cf.Investing
		case financing:
			bucket = &cf.Financing
		default:
			bucket = &cf.Operating
		}
		bucket.Activities = append(bucket.Activities, activity)
		bucket.Total = bucket.Total.Add(activity.Amount)
	}
	cf.NetCashFlow = cf.Operating.Total.Add(cf.Investing.Total).Add(cf.Financing.Total)
	cf.EndingCash = cf.BeginningCash.Add(cf.NetCashFlow)
	return cf
}

// BuildRatios derives liquidity, leverage and margin figures. Undefined ratios are zero.
func BuildRatios(bs BalanceSheet, ytd ProfitAndLoss) Ratios {
	r := Ratios{
		TenantID:         bs.TenantID,
		AsOf:             bs.AsOf,
		WorkingCapital:   bs.Assets.Current.Total.Sub(bs.Liabilities.Current.Total),
		TotalAssets:      bs.Assets.Total,
		TotalLiabilities: bs.Liabilities.Total,
		TotalEquity:      bs.Equity.Total,
	}
	r.CurrentRatio = ratio(bs.Assets.Current.Total, bs.Liabilities.Current.Total)
	r.DebtToEquity = ratio(bs.Liabilities.Total, bs.Equity.Total)
	r.GrossMargin = ratio(ytd.GrossProfit, ytd.Revenue.Total)
	r.NetMargin = ratio(ytd.NetIncome, ytd.Revenue.Total)
	return r
}

func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, ratioPlaces)
}
