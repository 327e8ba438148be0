package integration

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// MonitorRepository supplies the counts behind health and performance reports.
type MonitorRepository interface {
	// IntegrationEntries counts entries created by the integration actor in [from, to).
	IntegrationEntries(ctx context.Context, tenantID string, from, to time.Time) (int, error)
	// EventCounts groups outbox events by status. A zero since counts every event.
	EventCounts(ctx context.Context, tenantID string, since time.Time) (map[Status]int, error)
	// Throughput sums invoices, cost allocations and recognised revenue in [from, to).
	Throughput(ctx context.Context, tenantID string, from, to time.Time) (Throughput, error)
}

// Throughput aggregates satellite activity over a window.
type Throughput struct {
	Invoices          int             `json:"invoicesGenerated"`
	CostAllocations   int             `json:"costAllocations"`
	RevenueRecognized decimal.Decimal `json:"revenueRecognized"`
}

// Health is the hourly integration health snapshot.
type Health struct {
	TenantID      string    `json:"tenantId"`
	Status        string    `json:"status"`
	RecentEntries int       `json:"recentEntries"`
	Pending       int       `json:"pendingEvents"`
	Failed        int       `json:"failedEvents"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// Healthy reports whether no threshold was crossed.
func (h Health) Healthy() bool { return h.Status == "healthy" }

// Performance summarises integration output for a window.
type Performance struct {
	TenantID           string         `json:"tenantId"`
	From               time.Time      `json:"from"`
	To                 time.Time      `json:"to"`
	IntegrationEntries int            `json:"integrationEntries"`
	Events             map[Status]int `json:"events"`
	Throughput
}

// Monitor computes integration health and performance.
type Monitor struct {
	repo             MonitorRepository
	pendingThreshold int
	logger           *slog.Logger
	now              func() time.Time
}

// NewMonitor constructs a Monitor. Pending counts above pendingThreshold flag a warning.
func NewMonitor(repo MonitorRepository, pendingThreshold int, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{repo: repo, pendingThreshold: pendingThreshold, logger: logger.With(slog.String("component", "integration.monitor")), now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (m *Monitor) WithNow(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Health checks the last hour: warning when pending events exceed the threshold or any event failed.
func (m *Monitor) Health(ctx context.Context, tenantID string) (Health, error) {
	if tenantID == "" {
		return Health{}, shared.ErrTenantRequired
	}
	now := m.now()
	hourAgo := now.Add(-time.Hour)
	entries, err := m.repo.IntegrationEntries(ctx, tenantID, hourAgo, now)
	if err != nil {
		return Health{}, err
	}
	all, err := m.repo.EventCounts(ctx, tenantID, time.Time{})
	if err != nil {
		return Health{}, err
	}
	recent, err := m.repo.EventCounts(ctx, tenantID, hourAgo)
	if err != nil {
		return Health{}, err
	}
	h := Health{
		TenantID:      tenantID,
		Status:        "healthy",
		RecentEntries: entries,
		Pending:       all[StatusPending],
		Failed:        recent[StatusFailed] + recent[StatusRejected] + recent[StatusDead],
		CheckedAt:     now,
	}
	if h.Pending > m.pendingThreshold || h.Failed > 0 {
		h.Status = "warning"
		m.logger.Warn("integration health degraded",
			slog.String("tenant", tenantID), slog.Int("pending", h.Pending), slog.Int("failed", h.Failed))
	}
	return h, nil
}

// Performance reports integration output for [from, to).
func (m *Monitor) Performance(ctx context.Context, tenantID string, from, to time.Time) (Performance, error) {
	if tenantID == "" {
		return Performance{}, shared.ErrTenantRequired
	}
	if to.IsZero() {
		to = m.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -7)
	}
	entries, err := m.repo.IntegrationEntries(ctx, tenantID, from, to)
	if err != nil {
		return Performance{}, err
	}
	events, err := m.repo.EventCounts(ctx, tenantID, from)
	if err != nil {
		return Performance{}, err
	}
	tp, err := m.repo.Throughput(ctx, tenantID, from, to)
	if err != nil {
		return Performance{}, err
	}
	return Performance{
		TenantID:           tenantID,
		From:               from,
		To:                 to,
		IntegrationEntries: entries,
		Events:             events,
		Throughput:         tp,
	}, nil
}
