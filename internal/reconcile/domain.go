package reconcile

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRepositoryRequired is returned when the service has no backing store.
var ErrRepositoryRequired = errors.New("reconcile: repository required")

// Wave is a completed picking wave as recorded by the warehouse services.
type Wave struct {
	ID          string
	WarehouseID string
	TotalTasks  int
	TotalTime   decimal.Decimal
	CompletedAt time.Time
}

// Shipment is a delivered shipment as recorded by the warehouse services.
type Shipment struct {
	ID          string
	ClientID    string
	ServiceType string
	Weight      decimal.Decimal
	TotalCost   *decimal.Decimal
	DeliveredAt time.Time
}

// Failure describes one operation the re-drive could not post.
type Failure struct {
	Kind        string `json:"kind"`
	OperationID string `json:"operationId"`
	Error       string `json:"error"`
}

// InventoryCheck compares the stock valuation with the inventory account.
type InventoryCheck struct {
	Operational decimal.Decimal `json:"operationalValue"`
	Ledger      decimal.Decimal `json:"ledgerBalance"`
	Variance    decimal.Decimal `json:"variance"`
	Flagged     bool            `json:"flagged"`
}

// Counts tallies one kind of operation.
type Counts struct {
	Checked    int `json:"checked"`
	Missing    int `json:"missing"`
	Redriven   int `json:"redriven"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Report is the outcome of reconciling one tenant for one day.
type Report struct {
	TenantID  string         `json:"tenantId"`
	Date      time.Time      `json:"date"`
	Waves     Counts         `json:"waves"`
	Shipments Counts         `json:"shipments"`
	Inventory InventoryCheck `json:"inventory"`
	Failures  []Failure      `json:"failures,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Clean reports whether nothing needed attention.
func (r Report) Clean() bool {
	return r.Error == "" && len(r.Failures) == 0 && r.Waves.Missing == 0 &&
		r.Shipments.Missing == 0 && !r.Inventory.Flagged
}
