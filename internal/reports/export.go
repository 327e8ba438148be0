package reports

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCase = cases.Title(language.English)

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// WriteTrialBalanceCSV serialises the trial balance with a closing totals row.
func WriteTrialBalanceCSV(w io.Writer, tb TrialBalance) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Account Code", "Account Name", "Type", "Debit", "Credit"}); err != nil {
		return err
	}
	for _, row := range tb.Accounts {
		if err := writer.Write([]string{row.Code, row.Name, titleCase.String(string(row.Type)), amount(row.Debit), amount(row.Credit)}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "Total as of " + tb.AsOf.Format(time.DateOnly), "", amount(tb.TotalDebits), amount(tb.TotalCredits)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteProfitAndLossCSV emits revenue and expense lines followed by the subtotals.
func WriteProfitAndLossCSV(w io.Writer, pl ProfitAndLoss) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Section", "Account Code", "Account Name", "Amount"}); err != nil {
		return err
	}
	sections := []struct {
		label   string
		section Section
	}{{"revenue", pl.Revenue}, {"expenses", pl.Expenses}}
	for _, s := range sections {
		label := titleCase.String(s.label)
		for _, line := range s.section.Accounts {
			if err := writer.Write([]string{label, line.Code, line.Name, amount(line.Balance)}); err != nil {
				return err
			}
		}
		if err := writer.Write([]string{label, "", "Total " + label, amount(s.section.Total)}); err != nil {
			return err
		}
	}
	for _, rec := range [][]string{
		{"Summary", "", "Gross Profit", amount(pl.GrossProfit)},
		{"Summary", "", "Net Income", amount(pl.NetIncome)},
	} {
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
