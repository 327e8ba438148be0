package integration

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an operational event that the engine translates into a posting.
type EventType string

// Supported event types. Anything else resolves to a NO_HANDLER result.
const (
	EventWaveCompleted     EventType = "wave.completed"
	EventPickCompleted     EventType = "pick.completed"
	EventPackCompleted     EventType = "pack.completed"
	EventShipmentDelivered EventType = "shipment.delivered"
	EventInventoryReceived EventType = "inventory.received"
	EventInventoryAdjusted EventType = "inventory.adjusted"
	EventStockMovement     EventType = "stock.movement"
	EventAssetMaintenance  EventType = "asset.maintenance"
	EventAssetDepreciated  EventType = "asset.depreciated"
	EventUtilityBill       EventType = "utility.bill"
	EventPurchaseReceived  EventType = "purchase.received"
	EventSupplierInvoice   EventType = "supplier.invoice"
)

var eventTypes = []EventType{
	EventWaveCompleted,
	EventPickCompleted,
	EventPackCompleted,
	EventShipmentDelivered,
	EventInventoryReceived,
	EventInventoryAdjusted,
	EventStockMovement,
	EventAssetMaintenance,
	EventAssetDepreciated,
	EventUtilityBill,
	EventPurchaseReceived,
	EventSupplierInvoice,
}

// EventTypes lists every event type with a posting rule.
func EventTypes() []EventType {
	return append([]EventType(nil), eventTypes...)
}

// ParseEventType resolves a raw name against the closed set.
func ParseEventType(raw string) (EventType, bool) {
	candidate := EventType(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range eventTypes {
		if t == candidate {
			return t, true
		}
	}
	return "", false
}

// String implements fmt.Stringer.
func (t EventType) String() string { return string(t) }

// OccurredAt is embedded by payloads; when absent the engine clock dates the posting.
type OccurredAt struct {
	At *time.Time `json:"occurredAt,omitempty"`
}

func (o OccurredAt) date(now time.Time) time.Time {
	if o.At != nil && !o.At.IsZero() {
		return *o.At
	}
	return now
}

// LaborFields are shared by wave, pick and pack completion.
type LaborFields struct {
	TotalTasks  int             `json:"totalTasks" validate:"gte=0"`
	TotalTime   decimal.Decimal `json:"totalTime"`
	WarehouseID string          `json:"warehouseId" validate:"required"`
	OccurredAt
}

// WaveCompleted is raised when every task of a wave is done. TotalTime is in minutes.
type WaveCompleted struct {
	WaveID string `json:"waveId" validate:"required"`
	LaborFields
}

// PickCompleted is raised per completed pick list.
type PickCompleted struct {
	PickListID string `json:"pickListId" validate:"required"`
	LaborFields
}

// PackCompleted is raised per completed packing slip.
type PackCompleted struct {
	PackingSlipID string `json:"packingSlipId" validate:"required"`
	LaborFields
}

// ShipmentDelivered triggers revenue recognition and invoicing.
type ShipmentDelivered struct {
	ShipmentID  string           `json:"shipmentId" validate:"required"`
	ClientID    string           `json:"clientId" validate:"required"`
	ServiceType string           `json:"serviceType" validate:"omitempty,oneof=TRANSPORTATION STORAGE HANDLING"`
	TotalCost   *decimal.Decimal `json:"totalCost,omitempty"`
	Weight      decimal.Decimal  `json:"weight"`
	OccurredAt
}

// StockItem is one line of a receipt, purchase or movement.
type StockItem struct {
	SKU         string          `json:"sku" validate:"required"`
	WarehouseID string          `json:"warehouseId" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unitCost"`
}

// InventoryReceived capitalises received goods.
type InventoryReceived struct {
	ReceiptID string      `json:"receiptId" validate:"required"`
	Items     []StockItem `json:"items" validate:"required,min=1,dive"`
	OccurredAt
}

// PurchaseReceived capitalises goods received against a purchase order.
type PurchaseReceived struct {
	PurchaseOrderID string      `json:"purchaseOrderId" validate:"required"`
	Items           []StockItem `json:"items" validate:"required,min=1,dive"`
	OccurredAt
}

// InventoryAdjusted records a count correction; negative quantity is a write-down.
type InventoryAdjusted struct {
	AdjustmentID string          `json:"adjustmentId" validate:"required"`
	SKU          string          `json:"sku" validate:"required"`
	WarehouseID  string          `json:"warehouseId" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	Notes        string          `json:"notes"`
	OccurredAt
}

// StockMovement releases inventory to cost of goods sold for OUTBOUND movements.
type StockMovement struct {
	MovementID   string      `json:"movementId" validate:"required"`
	MovementType string      `json:"movementType" validate:"required"`
	Items        []StockItem `json:"items" validate:"required,min=1,dive"`
	OccurredAt
}

// AssetMaintenance expenses a completed work order.
type AssetMaintenance struct {
	WorkOrderID string          `json:"workOrderId" validate:"required"`
	AssetID     string          `json:"assetId" validate:"required"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	LaborHours  decimal.Decimal `json:"laborHours"`
	PartsUsed   []string        `json:"partsUsed"`
	OccurredAt
}

// AssetDepreciated books one month of straight-line depreciation unless Amount is given.
type AssetDepreciated struct {
	AssetID      string           `json:"assetId" validate:"required"`
	Period       string           `json:"period" validate:"required,datetime=2006-01"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Cost         decimal.Decimal  `json:"cost"`
	SalvageValue decimal.Decimal  `json:"salvageValue"`
	LifeMonths   int              `json:"lifeMonths" validate:"gte=0"`
	OccurredAt
}

// UtilityBill accrues a utility expense.
type UtilityBill struct {
	UtilityBillID string          `json:"utilityBillId" validate:"required"`
	UtilityType   string          `json:"utilityType"`
	Amount        decimal.Decimal `json:"amount"`
	BillingPeriod string          `json:"billingPeriod"`
	OccurredAt
}

// SupplierInvoiceReceived records a payable.
type SupplierInvoiceReceived struct {
	SupplierID    string          `json:"supplierId" validate:"required"`
	InvoiceNumber string          `json:"invoiceNumber" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	DueDate       string          `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	OccurredAt
}
