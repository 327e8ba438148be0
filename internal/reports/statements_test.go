package reports

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
)

func activity(code string, typ ledger.AccountType, normal ledger.NormalBalance, debit, credit string) AccountActivity {
	return AccountActivity{Code: code, Name: code, Type: typ, NormalBalance: normal, Debit: d(debit), Credit: d(credit)}
}

func TestBuildTrialBalanceFlagsImbalance(t *testing.T) {
	accounts := []AccountActivity{
		activity("1000", ledger.AccountTypeAsset, ledger.NormalDebit, "100", "0"),
		activity("4000", ledger.AccountTypeRevenue, ledger.NormalCredit, "0", "99.98"),
	}

	tb := BuildTrialBalance("T1", jan(31), accounts)

	assert.False(t, tb.IsBalanced)

	accounts[1].Credit = d("99.995")
	assert.True(t, BuildTrialBalance("T1", jan(31), accounts).IsBalanced)
}

func TestBuildTrialBalancePlacesContraBalances(t *testing.T) {
	// Overdrawn cash carries a credit balance.
	tb := BuildTrialBalance("T1", jan(31), []AccountActivity{
		activity("1000", ledger.AccountTypeAsset, ledger.NormalDebit, "10", "60"),
		activity("2000", ledger.AccountTypeLiability, ledger.NormalCredit, "50", "0"),
	})

	require.Len(t, tb.Accounts, 2)
	assert.Equal(t, "50.00", tb.Accounts[0].Credit.StringFixed(2))
	assert.True(t, tb.Accounts[0].Debit.IsZero())
	assert.Equal(t, "50.00", tb.Accounts[1].Debit.StringFixed(2))
	assert.True(t, tb.IsBalanced)
}

func TestBuildBalanceSheetClassifiesByCode(t *testing.T) {
	bs := BuildBalanceSheet("T1", jan(31), []AccountActivity{
		activity("1400", ledger.AccountTypeAsset, ledger.NormalDebit, "200", "0"),
		activity("1600", ledger.AccountTypeAsset, ledger.NormalDebit, "800", "0"),
		activity("2200", ledger.AccountTypeLiability, ledger.NormalCredit, "0", "300"),
		activity("2500", ledger.AccountTypeLiability, ledger.NormalCredit, "0", "700"),
	})

	assert.Equal(t, "1400", bs.Assets.Current.Accounts[0].Code)
	assert.Equal(t, "1600", bs.Assets.NonCurrent.Accounts[0].Code)
	assert.Equal(t, "2200", bs.Liabilities.Current.Accounts[0].Code)
	assert.Equal(t, "2500", bs.Liabilities.NonCurrent.Accounts[0].Code)
	assert.True(t, bs.IsBalanced)
}

func TestBuildProfitAndLossSkipsBalanceSheetAccounts(t *testing.T) {
	pl := BuildProfitAndLoss("T1", jan(1), jan(31), []AccountActivity{
		activity("1000", ledger.AccountTypeAsset, ledger.NormalDebit, "500", "0"),
		activity("4100", ledger.AccountTypeRevenue, ledger.NormalCredit, "0", "500"),
		activity("5300", ledger.AccountTypeExpense, ledger.NormalDebit, "0", "0"),
	})

	require.Len(t, pl.Revenue.Accounts, 1)
	assert.Empty(t, pl.Expenses.Accounts)
	assert.Equal(t, "500.00", pl.GrossProfit.StringFixed(2))
	assert.Equal(t, "500.00", pl.NetIncome.StringFixed(2))
}

func TestCategorizeCashLines(t *testing.T) {
	cases := []struct {
		line CashLine
		want cashCategory
	}{
		{CashLine{ReferenceType: ledger.RefShipment, Description: "Equipment shipment"}, operating},
		{CashLine{ReferenceType: ledger.RefManual, Description: "Vehicle purchase"}, investing},
		{CashLine{ReferenceType: ledger.RefManual, Description: "Loan repayment"}, financing},
		{CashLine{ReferenceType: ledger.RefManual, Description: "Petty cash top-up"}, operating},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, categorize(tc.line), tc.line.Description)
	}
}

func TestBuildRatiosGuardsZeroDenominators(t *testing.T) {
	r := BuildRatios(BalanceSheet{TenantID: "T1"}, ProfitAndLoss{})

	assert.True(t, r.CurrentRatio.IsZero())
	assert.True(t, r.DebtToEquity.IsZero())
	assert.True(t, r.NetMargin.IsZero())
}

func TestWriteTrialBalanceCSV(t *testing.T) {
	tb := BuildTrialBalance("T1", jan(31), []AccountActivity{
		{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, NormalBalance: ledger.NormalDebit, Debit: d("1080")},
		{Code: "4000", Name: "Transportation Revenue", Type: ledger.AccountTypeRevenue, NormalBalance: ledger.NormalCredit, Credit: d("1080")},
	})
	var buf bytes.Buffer

	require.NoError(t, WriteTrialBalanceCSV(&buf, tb))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Account Code", "Account Name", "Type", "Debit", "Credit"},
		{"1000", "Cash", "Asset", "1080.00", "0.00"},
		{"4000", "Transportation Revenue", "Revenue", "0.00", "1080.00"},
		{"", "Total as of 2025-01-31", "", "1080.00", "1080.00"},
	}, records)
}

func TestWriteProfitAndLossCSV(t *testing.T) {
	pl := ProfitAndLoss{From: jan(1), To: jan(31)}
	pl.Revenue.add(StatementLine{Code: "4000", Name: "Transportation Revenue", Balance: decimal.NewFromInt(1000)})
	pl.Expenses.add(StatementLine{Code: "5300", Name: "Labor Expense", Balance: decimal.NewFromInt(250)})
	pl.GrossProfit = decimal.NewFromInt(1000)
	pl.NetIncome = decimal.NewFromInt(750)
	var buf bytes.Buffer

	require.NoError(t, WriteProfitAndLossCSV(&buf, pl))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 7)
	assert.Equal(t, []string{"Expenses", "", "Total Expenses", "250.00"}, records[4])
	assert.Equal(t, []string{"Summary", "", "Net Income", "750.00"}, records[6])
}
