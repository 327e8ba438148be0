package ledger

// Account codes the integration rules and period close post against.
const (
	CodeCash                    = "1000"
	CodePettyCash               = "1100"
	CodeAccountsReceivable      = "1200"
	CodeInventory               = "1300"
	CodePrepaidExpenses         = "1400"
	CodeEquipment               = "1500"
	CodeAccumulatedDepreciation = "1510"
	CodeVehicles                = "1600"
	CodeAccountsPayable         = "2000"
	CodeAccruedExpenses         = "2100"
	CodePayrollLiabilities      = "2200"
	CodeSalesTaxPayable         = "2300"
	CodeLongTermDebt            = "2500"
	CodeOwnersEquity            = "3000"
	CodeRetainedEarnings        = "3100"
	CodeTransportationRevenue   = "4000"
	CodeStorageRevenue          = "4100"
	CodeHandlingRevenue         = "4200"
	CodeCOGS                    = "5000"
	CodeInventoryAdjustments    = "5100"
	CodeMaintenanceExpense      = "5200"
	CodeLaborExpense            = "5300"
	CodeDepreciationExpense     = "5400"
	CodeSalaries                = "6000"
	CodeFuel                    = "6100"
	CodeUtilities               = "6400"
	CodeRent                    = "6500"
	CodeInsurance               = "6600"
	CodeOfficeSupplies          = "6700"
)

// ChartAccount is one row of the default chart seeded for every tenant.
type ChartAccount struct {
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
}

// DefaultChart returns the chart of accounts created at tenant initialization.
func DefaultChart() []ChartAccount {
	return []ChartAccount{
		{CodeCash, "Cash", AccountTypeAsset, NormalDebit},
		{CodePettyCash, "Petty Cash", AccountTypeAsset, NormalDebit},
		{CodeAccountsReceivable, "Accounts Receivable", AccountTypeAsset, NormalDebit},
		{CodeInventory, "Inventory", AccountTypeAsset, NormalDebit},
		{CodePrepaidExpenses, "Prepaid Expenses", AccountTypeAsset, NormalDebit},
		{CodeEquipment, "Equipment", AccountTypeAsset, NormalDebit},
		{CodeAccumulatedDepreciation, "Accumulated Depreciation", AccountTypeAsset, NormalCredit},
		{CodeVehicles, "Vehicles", AccountTypeAsset, NormalDebit},
		{CodeAccountsPayable, "Accounts Payable", AccountTypeLiability, NormalCredit},
		{CodeAccruedExpenses, "Accrued Expenses", AccountTypeLiability, NormalCredit},
		{CodePayrollLiabilities, "Payroll Liabilities", AccountTypeLiability, NormalCredit},
		{CodeSalesTaxPayable, "Sales Tax Payable", AccountTypeLiability, NormalCredit},
		{CodeLongTermDebt, "Long-Term Debt", AccountTypeLiability, NormalCredit},
		{CodeOwnersEquity, "Owner's Equity", AccountTypeEquity, NormalCredit},
		{CodeRetainedEarnings, "Retained Earnings", AccountTypeEquity, NormalCredit},
		{CodeTransportationRevenue, "Transportation Revenue", AccountTypeRevenue, NormalCredit},
		{CodeStorageRevenue, "Storage Revenue", AccountTypeRevenue, NormalCredit},
		{CodeHandlingRevenue, "Handling Revenue", AccountTypeRevenue, NormalCredit},
		{CodeCOGS, "Cost of Goods Sold", AccountTypeExpense, NormalDebit},
		{CodeInventoryAdjustments, "Inventory Adjustments", AccountTypeExpense, NormalDebit},
		{CodeMaintenanceExpense, "Maintenance Expense", AccountTypeExpense, NormalDebit},
		{CodeLaborExpense, "Labor Expense", AccountTypeExpense, NormalDebit},
		{CodeDepreciationExpense, "Depreciation Expense", AccountTypeExpense, NormalDebit},
		{CodeSalaries, "Salaries and Wages", AccountTypeExpense, NormalDebit},
		{CodeFuel, "Fuel Expense", AccountTypeExpense, NormalDebit},
		{CodeUtilities, "Utilities", AccountTypeExpense, NormalDebit},
		{CodeRent, "Rent Expense", AccountTypeExpense, NormalDebit},
		{CodeInsurance, "Insurance Expense", AccountTypeExpense, NormalDebit},
		{CodeOfficeSupplies, "Office Supplies", AccountTypeExpense, NormalDebit},
	}
}
