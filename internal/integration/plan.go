package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
)

// sourceNamespace scopes integration idempotency keys.
var sourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:wms-ledger:integration"))

// SourceKey derives the idempotency key of one operational event. The same
// (tenant, event type, operation id) always yields the same key.
func SourceKey(tenantID string, evt EventType, operationID string) uuid.UUID {
	return uuid.NewSHA1(sourceNamespace, []byte(fmt.Sprintf("%s:%s:%s", tenantID, evt, operationID)))
}

// Rates holds the configurable amounts used by posting rules.
type Rates struct {
	SalesTax     decimal.Decimal
	LaborPerHour decimal.Decimal
}

// DefaultRates mirrors the production defaults: 8% sales tax and 25.00 per labor hour.
func DefaultRates() Rates {
	return Rates{SalesTax: decimal.RequireFromString("0.08"), LaborPerHour: decimal.NewFromInt(25)}
}

var (
	shipmentBase       = decimal.NewFromInt(50)
	shipmentPerWeight  = decimal.RequireFromString("0.5")
	shipmentDistance   = decimal.NewFromInt(10)
	minutesPerHour     = decimal.NewFromInt(60)
	invoiceTermsDays   = 30
	payableTermsDays   = 30
	unitCostPrecision  = int32(4)
	defaultUtilityType = "ELECTRICITY"
)

// ShipmentCost estimates a shipment charge when the event carries no total:
// base 50 plus 0.50 per weight unit plus a flat 10 distance surcharge.
func ShipmentCost(weight decimal.Decimal) decimal.Decimal {
	return ledger.Cents(shipmentBase.Add(weight.Mul(shipmentPerWeight)).Add(shipmentDistance))
}

// CostAllocation attributes labor cost to a warehouse activity center.
type CostAllocation struct {
	ID             int64           `json:"id"`
	TenantID       string          `json:"tenantId"`
	IdempotencyKey uuid.UUID       `json:"idempotencyKey"`
	EntryID        int64           `json:"journalEntryId"`
	WarehouseID    string          `json:"warehouseId"`
	Service        string          `json:"service"`
	TotalCost      decimal.Decimal `json:"totalCost"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	Quantity       int             `json:"quantity"`
	AllocationDate time.Time       `json:"allocationDate"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// InvoiceLine is one billed service.
type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	ServiceType string          `json:"serviceType"`
}

// Invoice is the customer billing record raised on delivery.
type Invoice struct {
	ID             int64           `json:"id"`
	TenantID       string          `json:"tenantId"`
	IdempotencyKey uuid.UUID       `json:"idempotencyKey"`
	EntryID        int64           `json:"journalEntryId"`
	Number         string          `json:"invoiceNumber"`
	CustomerID     string          `json:"customerId"`
	ShipmentID     string          `json:"shipmentId"`
	IssueDate      time.Time       `json:"issueDate"`
	DueDate        time.Time       `json:"dueDate"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Status         string          `json:"status"`
	BillingType    string          `json:"billingType"`
	ServiceType    string          `json:"serviceType"`
	Lines          []InvoiceLine   `json:"lines"`
}

// Expense is an operating cost record.
type Expense struct {
	ID             int64           `json:"id"`
	TenantID       string          `json:"tenantId"`
	IdempotencyKey uuid.UUID       `json:"idempotencyKey"`
	EntryID        int64           `json:"journalEntryId"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category"`
	ExpenseDate    time.Time       `json:"expenseDate"`
	Status         string          `json:"status"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// SupplierInvoice is a payable raised by a supplier bill.
type SupplierInvoice struct {
	ID             int64           `json:"id"`
	TenantID       string          `json:"tenantId"`
	IdempotencyKey uuid.UUID       `json:"idempotencyKey"`
	EntryID        int64           `json:"journalEntryId"`
	Number         string          `json:"invoiceNumber"`
	SupplierID     string          `json:"supplierId"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	InvoiceDate    time.Time       `json:"invoiceDate"`
	DueDate        time.Time       `json:"dueDate"`
	Description    string          `json:"description"`
}

// StockDelta changes the valuation of one (sku, warehouse). Value is signed like Quantity.
type StockDelta struct {
	SKU         string
	WarehouseID string
	Quantity    decimal.Decimal
	Value       decimal.Decimal
}

// Plan is what a posting rule decides for one event. A non-empty Skip means nothing is written.
type Plan struct {
	OperationID     string
	Skip            string
	Entry           ledger.EntryInput
	Allocation      *CostAllocation
	Invoice         *Invoice
	Expense         *Expense
	SupplierInvoice *SupplierInvoice
	Stock           []StockDelta
}

func skip(operationID, reason string) Plan {
	return Plan{OperationID: operationID, Skip: reason}
}
