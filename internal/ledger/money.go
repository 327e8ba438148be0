package ledger

import "github.com/shopspring/decimal"

// Tolerance absorbs rounding when re-verifying stored entries.
var Tolerance = decimal.New(1, -2)

// Cents rounds an amount half away from zero to two places.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Balanced reports |debit - credit| <= Tolerance.
func Balanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThanOrEqual(Tolerance)
}

// SumLines totals both sides of a line set.
func SumLines(lines []LedgerLine) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}
