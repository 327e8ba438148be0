package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
)

// ErrInvalidPayload indicates an event payload that cannot be decoded or fails validation.
var ErrInvalidPayload = errors.New("integration: invalid payload")

// CostLookup reads the current weighted average cost inside the posting transaction.
type CostLookup interface {
	AverageCost(ctx context.Context, tenantID, sku, warehouseID string) (decimal.Decimal, error)
}

type ruleEnv struct {
	rates Rates
	now   time.Time
	costs CostLookup
}

// rule turns one raw payload into a Plan. Rules never write.
type rule func(ctx context.Context, env ruleEnv, tenantID string, raw json.RawMessage) (Plan, error)

type dispatchTable map[EventType]rule

func newDispatchTable(validate *validator.Validate) dispatchTable {
	return dispatchTable{
		EventWaveCompleted:     handle(validate, waveCompleted),
		EventPickCompleted:     handle(validate, pickCompleted),
		EventPackCompleted:     handle(validate, packCompleted),
		EventShipmentDelivered: handle(validate, shipmentDelivered),
		EventInventoryReceived: handle(validate, inventoryReceived),
		EventInventoryAdjusted: handle(validate, inventoryAdjusted),
		EventStockMovement:     handle(validate, stockMovement),
		EventAssetMaintenance:  handle(validate, assetMaintenance),
		EventAssetDepreciated:  handle(validate, assetDepreciated),
		EventUtilityBill:       handle(validate, utilityBill),
		EventPurchaseReceived:  handle(validate, purchaseReceived),
		EventSupplierInvoice:   handle(validate, supplierInvoice),
	}
}

func handle[T any](validate *validator.Validate, fn func(context.Context, ruleEnv, string, T) (Plan, error)) rule {
	return func(ctx context.Context, env ruleEnv, tenantID string, raw json.RawMessage) (Plan, error) {
		var payload T
		if len(raw) == 0 {
			return Plan{}, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if err := validate.Struct(payload); err != nil {
			return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return fn(ctx, env, tenantID, payload)
	}
}

func nonNegative(field string, values ...decimal.Decimal) error {
	for _, v := range values {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidPayload, field)
		}
	}
	return nil
}

func entry(desc string, date time.Time, ref ledger.ReferenceType, refID string, postings ...ledger.Posting) ledger.EntryInput {
	return ledger.EntryInput{
		Description:     desc,
		TransactionDate: date,
		ReferenceType:   ref,
		ReferenceID:     refID,
		Status:          ledger.EntryStatusPosted,
		Postings:        postings,
	}
}

func waveCompleted(_ context.Context, env ruleEnv, _ string, p WaveCompleted) (Plan, error) {
	return laborPlan(env, p.WaveID, p.LaborFields, "PICKING", ledger.RefWave,
		"Labor cost allocation - Wave "+p.WaveID, map[string]any{"waveId": p.WaveID})
}

func pickCompleted(_ context.Context, env ruleEnv, _ string, p PickCompleted) (Plan, error) {
	return laborPlan(env, p.PickListID, p.LaborFields, "PICKING", ledger.RefPick,
		"Labor cost allocation - PickList "+p.PickListID, map[string]any{"pickListId": p.PickListID})
}

func packCompleted(_ context.Context, env ruleEnv, _ string, p PackCompleted) (Plan, error) {
	return laborPlan(env, p.PackingSlipID, p.LaborFields, "PACKING", ledger.RefPack,
		"Labor cost allocation - PackingSlip "+p.PackingSlipID, map[string]any{"packingSlipId": p.PackingSlipID})
}

// laborPlan books totalTime minutes at the hourly labor rate to labor expense.
func laborPlan(env ruleEnv, opID string, f LaborFields, service string, ref ledger.ReferenceType, desc string, meta map[string]any) (Plan, error) {
	if err := nonNegative("totalTime", f.TotalTime); err != nil {
		return Plan{}, err
	}
	if f.TotalTasks == 0 {
		return skip(opID, "No tasks to allocate"), nil
	}
	cost := ledger.Cents(f.TotalTime.Div(minutesPerHour).Mul(env.rates.LaborPerHour))
	if !cost.IsPositive() {
		return skip(opID, "No labor time to allocate"), nil
	}
	date := ledger.DateOnly(f.date(env.now))
	tasks := decimal.NewFromInt(int64(f.TotalTasks))
	meta["totalTime"] = f.TotalTime.String()
	meta["laborRate"] = env.rates.LaborPerHour.StringFixed(2)
	return Plan{
		OperationID: opID,
		Entry: entry(desc, date, ref, opID,
			ledger.Debit(ledger.CodeLaborExpense, cost),
			ledger.Credit(ledger.CodeAccruedExpenses, cost),
		),
		Allocation: &CostAllocation{
			WarehouseID:    f.WarehouseID,
			Service:        service,
			TotalCost:      cost,
			UnitCost:       cost.DivRound(tasks, unitCostPrecision),
			Quantity:       f.TotalTasks,
			AllocationDate: date,
			Metadata:       meta,
		},
	}, nil
}

var revenueAccounts = map[string]string{
	"TRANSPORTATION": ledger.CodeTransportationRevenue,
	"STORAGE":        ledger.CodeStorageRevenue,
	"HANDLING":       ledger.CodeHandlingRevenue,
}

var serviceLabels = map[string]string{
	"TRANSPORTATION": "Transportation services",
	"STORAGE":        "Storage services",
	"HANDLING":       "Handling services",
}

// shipmentDelivered recognises revenue plus sales tax against receivables and raises an invoice.
func shipmentDelivered(_ context.Context, env ruleEnv, _ string, p ShipmentDelivered) (Plan, error) {
	if err := nonNegative("weight", p.Weight); err != nil {
		return Plan{}, err
	}
	subtotal := ShipmentCost(p.Weight)
	if p.TotalCost != nil {
		if err := nonNegative("totalCost", *p.TotalCost); err != nil {
			return Plan{}, err
		}
		if p.TotalCost.IsPositive() {
			subtotal = ledger.Cents(*p.TotalCost)
		}
	}
	service := p.ServiceType
	if service == "" {
		service = "TRANSPORTATION"
	}
	tax := ledger.Cents(subtotal.Mul(env.rates.SalesTax))
	total := subtotal.Add(tax)
	date := ledger.DateOnly(p.date(env.now))

	postings := []ledger.Posting{
		ledger.Debit(ledger.CodeAccountsReceivable, total),
		ledger.Credit(revenueAccounts[service], subtotal),
	}
	if tax.IsPositive() {
		postings = append(postings, ledger.Credit(ledger.CodeSalesTaxPayable, tax))
	}
	return Plan{
		OperationID: p.ShipmentID,
		Entry:       entry("Revenue recognition - Shipment "+p.ShipmentID, date, ledger.RefShipment, p.ShipmentID, postings...),
		Invoice: &Invoice{
			CustomerID:  p.ClientID,
			ShipmentID:  p.ShipmentID,
			IssueDate:   date,
			DueDate:     date.AddDate(0, 0, invoiceTermsDays),
			Subtotal:    subtotal,
			TaxAmount:   tax,
			TotalAmount: total,
			Status:      "SENT",
			BillingType: "SHIPMENT_BASED",
			ServiceType: service,
			Lines: []InvoiceLine{{
				Description: serviceLabels[service] + " - Shipment " + p.ShipmentID,
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   subtotal,
				TotalPrice:  subtotal,
				ServiceType: service,
			}},
		},
	}, nil
}

func inventoryReceived(_ context.Context, env ruleEnv, _ string, p InventoryReceived) (Plan, error) {
	return receiptPlan(env, p.ReceiptID, p.Items, p.OccurredAt, ledger.RefInventory, "Inventory received - Receipt "+p.ReceiptID)
}

func purchaseReceived(_ context.Context, env ruleEnv, _ string, p PurchaseReceived) (Plan, error) {
	return receiptPlan(env, p.PurchaseOrderID, p.Items, p.OccurredAt, ledger.RefPurchase, "Purchase received - PO "+p.PurchaseOrderID)
}

// receiptPlan capitalises received stock at quantity times unit cost against payables.
func receiptPlan(env ruleEnv, opID string, items []StockItem, at OccurredAt, ref ledger.ReferenceType, desc string) (Plan, error) {
	total := decimal.Zero
	deltas := make([]StockDelta, 0, len(items))
	for _, item := range items {
		if !item.Quantity.IsPositive() {
			return Plan{}, fmt.Errorf("%w: quantity of %s must be positive", ErrInvalidPayload, item.SKU)
		}
		if err := nonNegative("unitCost", item.UnitCost); err != nil {
			return Plan{}, err
		}
		value := ledger.Cents(item.Quantity.Mul(item.UnitCost))
		total = total.Add(value)
		deltas = append(deltas, StockDelta{SKU: item.SKU, WarehouseID: item.WarehouseID, Quantity: item.Quantity, Value: value})
	}
	if !total.IsPositive() {
		return skip(opID, "Zero inventory value"), nil
	}
	return Plan{
		OperationID: opID,
		Entry: entry(desc, ledger.DateOnly(at.date(env.now)), ref, opID,
			ledger.Debit(ledger.CodeInventory, total),
			ledger.Credit(ledger.CodeAccountsPayable, total),
		),
		Stock: deltas,
	}, nil
}

// inventoryAdjusted books count differences against the adjustments account.
// A missing unit cost values the difference at the current average cost.
func inventoryAdjusted(ctx context.Context, env ruleEnv, tenantID string, p InventoryAdjusted) (Plan, error) {
	if err := nonNegative("unitCost", p.UnitCost); err != nil {
		return Plan{}, err
	}
	if p.Quantity.IsZero() {
		return skip(p.AdjustmentID, "Zero quantity adjustment"), nil
	}
	unit := p.UnitCost
	if unit.IsZero() {
		avg, err := env.costs.AverageCost(ctx, tenantID, p.SKU, p.WarehouseID)
		if err != nil {
			return Plan{}, err
		}
		unit = avg
	}
	value := ledger.Cents(p.Quantity.Abs().Mul(unit))
	if !value.IsPositive() {
		return skip(p.AdjustmentID, "No cost basis for adjustment"), nil
	}
	desc := "Inventory adjustment - " + p.SKU
	if p.Notes != "" {
		desc += " (" + p.Notes + ")"
	}
	postings := []ledger.Posting{
		ledger.Debit(ledger.CodeInventory, value),
		ledger.Credit(ledger.CodeInventoryAdjustments, value),
	}
	signed := value
	if p.Quantity.IsNegative() {
		postings = []ledger.Posting{
			ledger.Debit(ledger.CodeInventoryAdjustments, value),
			ledger.Credit(ledger.CodeInventory, value),
		}
		signed = value.Neg()
	}
	return Plan{
		OperationID: p.AdjustmentID,
		Entry:       entry(desc, ledger.DateOnly(p.date(env.now)), ledger.RefAdjustment, p.AdjustmentID, postings...),
		Stock:       []StockDelta{{SKU: p.SKU, WarehouseID: p.WarehouseID, Quantity: p.Quantity, Value: signed}},
	}, nil
}

// stockMovement releases outbound stock to COGS at the weighted average cost.
func stockMovement(ctx context.Context, env ruleEnv, tenantID string, p StockMovement) (Plan, error) {
	if !strings.EqualFold(p.MovementType, "OUTBOUND") {
		return skip(p.MovementID, fmt.Sprintf("Movement type %s does not affect the ledger", strings.ToUpper(p.MovementType))), nil
	}
	total := decimal.Zero
	deltas := make([]StockDelta, 0, len(p.Items))
	for _, item := range p.Items {
		if !item.Quantity.IsPositive() {
			return Plan{}, fmt.Errorf("%w: quantity of %s must be positive", ErrInvalidPayload, item.SKU)
		}
		avg, err := env.costs.AverageCost(ctx, tenantID, item.SKU, item.WarehouseID)
		if err != nil {
			return Plan{}, err
		}
		cost := ledger.Cents(item.Quantity.Mul(avg))
		total = total.Add(cost)
		deltas = append(deltas, StockDelta{SKU: item.SKU, WarehouseID: item.WarehouseID, Quantity: item.Quantity.Neg(), Value: cost.Neg()})
	}
	if !total.IsPositive() {
		return skip(p.MovementID, "No cost basis for movement"), nil
	}
	return Plan{
		OperationID: p.MovementID,
		Entry: entry("Cost of Goods Sold - Movement "+p.MovementID, ledger.DateOnly(p.date(env.now)), ledger.RefStockMovement, p.MovementID,
			ledger.Debit(ledger.CodeCOGS, total),
			ledger.Credit(ledger.CodeInventory, total),
		),
		Stock: deltas,
	}, nil
}

func assetMaintenance(_ context.Context, env ruleEnv, _ string, p AssetMaintenance) (Plan, error) {
	if err := nonNegative("totalCost", p.TotalCost, p.LaborHours); err != nil {
		return Plan{}, err
	}
	cost := ledger.Cents(p.TotalCost)
	if cost.IsZero() {
		return skip(p.WorkOrderID, "Zero maintenance cost"), nil
	}
	date := ledger.DateOnly(p.date(env.now))
	desc := "Maintenance expense - Work Order " + p.WorkOrderID
	return Plan{
		OperationID: p.WorkOrderID,
		Entry: entry(desc, date, ledger.RefMaintenance, p.WorkOrderID,
			ledger.Debit(ledger.CodeMaintenanceExpense, cost),
			ledger.Credit(ledger.CodeCash, cost),
		),
		Expense: &Expense{
			Description: desc,
			Amount:      cost,
			Category:    "MAINTENANCE",
			ExpenseDate: date,
			Status:      "APPROVED",
			Metadata: map[string]any{
				"workOrderId": p.WorkOrderID,
				"assetId":     p.AssetID,
				"laborHours":  p.LaborHours.String(),
				"partsUsed":   p.PartsUsed,
			},
		},
	}, nil
}

// assetDepreciated books (cost - salvage) / lifeMonths for the month named by Period.
func assetDepreciated(_ context.Context, env ruleEnv, _ string, p AssetDepreciated) (Plan, error) {
	if err := nonNegative("cost", p.Cost, p.SalvageValue); err != nil {
		return Plan{}, err
	}
	opID := p.AssetID + ":" + p.Period
	amount := decimal.Zero
	switch {
	case p.Amount != nil:
		if err := nonNegative("amount", *p.Amount); err != nil {
			return Plan{}, err
		}
		amount = ledger.Cents(*p.Amount)
	case p.LifeMonths > 0:
		amount = ledger.Cents(p.Cost.Sub(p.SalvageValue).Div(decimal.NewFromInt(int64(p.LifeMonths))))
	}
	if !amount.IsPositive() {
		return skip(opID, "No depreciable amount"), nil
	}
	month, err := time.Parse("2006-01", p.Period)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: period: %v", ErrInvalidPayload, err)
	}
	date := month.AddDate(0, 1, -1)
	if p.At != nil {
		date = p.date(env.now)
	}
	return Plan{
		OperationID: opID,
		Entry: entry(fmt.Sprintf("Depreciation - Asset %s (%s)", p.AssetID, p.Period), ledger.DateOnly(date), ledger.RefDepreciation, p.AssetID,
			ledger.Debit(ledger.CodeDepreciationExpense, amount),
			ledger.Credit(ledger.CodeAccumulatedDepreciation, amount),
		),
	}, nil
}

func utilityBill(_ context.Context, env ruleEnv, _ string, p UtilityBill) (Plan, error) {
	if err := nonNegative("amount", p.Amount); err != nil {
		return Plan{}, err
	}
	amount := ledger.Cents(p.Amount)
	if amount.IsZero() {
		return skip(p.UtilityBillID, "Zero utility amount"), nil
	}
	kind := strings.ToUpper(strings.TrimSpace(p.UtilityType))
	if kind == "" {
		kind = defaultUtilityType
	}
	date := ledger.DateOnly(p.date(env.now))
	desc := fmt.Sprintf("Utility bill (%s)", kind)
	return Plan{
		OperationID: p.UtilityBillID,
		Entry: entry(desc, date, ledger.RefUtility, p.UtilityBillID,
			ledger.Debit(ledger.CodeUtilities, amount),
			ledger.Credit(ledger.CodeAccountsPayable, amount),
		),
		Expense: &Expense{
			Description: desc,
			Amount:      amount,
			Category:    "UTILITIES",
			ExpenseDate: date,
			Status:      "APPROVED",
			Metadata: map[string]any{
				"utilityBillId": p.UtilityBillID,
				"utilityType":   kind,
				"billingPeriod": p.BillingPeriod,
			},
		},
	}, nil
}

func supplierInvoice(_ context.Context, env ruleEnv, _ string, p SupplierInvoiceReceived) (Plan, error) {
	if err := nonNegative("amount", p.Amount); err != nil {
		return Plan{}, err
	}
	opID := p.SupplierID + ":" + p.InvoiceNumber
	amount := ledger.Cents(p.Amount)
	if amount.IsZero() {
		return skip(opID, "Zero invoice amount"), nil
	}
	date := ledger.DateOnly(p.date(env.now))
	due := date.AddDate(0, 0, payableTermsDays)
	if p.DueDate != "" {
		parsed, err := time.Parse(time.DateOnly, p.DueDate)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: dueDate: %v", ErrInvalidPayload, err)
		}
		due = parsed
	}
	desc := p.Description
	if desc == "" {
		desc = "Supplier invoice"
	}
	return Plan{
		OperationID: opID,
		Entry: entry("Supplier invoice "+p.InvoiceNumber, date, ledger.RefSupplierInvoice, p.InvoiceNumber,
			ledger.Debit(ledger.CodeCOGS, amount),
			ledger.Credit(ledger.CodeAccountsPayable, amount),
		),
		SupplierInvoice: &SupplierInvoice{
			Number:      p.InvoiceNumber,
			SupplierID:  p.SupplierID,
			Amount:      amount,
			Status:      "OPEN",
			InvoiceDate: date,
			DueDate:     due,
			Description: desc,
		},
	}, nil
}
