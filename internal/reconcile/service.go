package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// Anomaly kinds reported to job metrics.
const (
	AnomalyMissingAllocation = "missing_cost_allocation"
	AnomalyMissingInvoice    = "missing_invoice"
	AnomalyInventoryVariance = "inventory_variance"
)

const tenantConcurrency = 4

var (
	defaultWaveTasks = 10
	defaultWaveTime  = decimal.NewFromInt(120)
)

// Repository reads operational activity and the satellites the engine wrote for it.
type Repository interface {
	ListTenants(ctx context.Context) ([]string, error)
	CompletedWaves(ctx context.Context, tenantID string, from, to time.Time) ([]Wave, error)
	DeliveredShipments(ctx context.Context, tenantID string, from, to time.Time) ([]Shipment, error)
	AllocatedKeys(ctx context.Context, tenantID string, keys []uuid.UUID) (map[uuid.UUID]bool, error)
	InvoicedKeys(ctx context.Context, tenantID string, keys []uuid.UUID) (map[uuid.UUID]bool, error)
	InventoryValue(ctx context.Context, tenantID string) (decimal.Decimal, error)
	AccountBalance(ctx context.Context, tenantID, code string) (decimal.Decimal, error)
}

// Service re-drives operations whose postings never landed and checks inventory valuation.
type Service struct {
	repo      Repository
	processor integration.Processor
	metrics   *jobmetrics.Metrics
	threshold decimal.Decimal
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs Service. threshold is the inventory variance that gets flagged.
func NewService(repo Repository, processor integration.Processor, metrics *jobmetrics.Metrics, threshold decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		processor: processor,
		metrics:   metrics,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "reconcile")),
		now:       time.Now,
	}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// day normalises the target date; zero means yesterday.
func (s *Service) day(day time.Time) time.Time {
	if day.IsZero() {
		day = s.now().UTC().AddDate(0, 0, -1)
	}
	return ledger.DateOnly(day)
}

// Run reconciles one tenant for one calendar day.
func (s *Service) Run(ctx context.Context, tenantID string, day time.Time) (Report, error) {
	if s.repo == nil {
		return Report{}, ErrRepositoryRequired
	}
	if tenantID == "" {
		return Report{}, shared.ErrTenantRequired
	}
	day = s.day(day)
	from, to := day, day.AddDate(0, 0, 1)
	report := Report{TenantID: tenantID, Date: day}
	logger := s.logger.With(slog.String("tenant_id", tenantID), slog.String("date", day.Format(time.DateOnly)))

	if err := s.waves(ctx, &report, from, to); err != nil {
		return report, fmt.Errorf("reconcile waves: %w", err)
	}
	if err := s.shipments(ctx, &report, from, to); err != nil {
		return report, fmt.Errorf("reconcile shipments: %w", err)
	}
	if err := s.inventory(ctx, &report); err != nil {
		return report, fmt.Errorf("reconcile inventory: %w", err)
	}

	s.metrics.AddAnomalies(AnomalyMissingAllocation, tenantID, report.Waves.Missing)
	s.metrics.AddAnomalies(AnomalyMissingInvoice, tenantID, report.Shipments.Missing)
	if report.Inventory.Flagged {
		s.metrics.AddAnomalies(AnomalyInventoryVariance, tenantID, 1)
		logger.Warn("inventory valuation variance",
			slog.String("operational", report.Inventory.Operational.StringFixed(2)),
			slog.String("ledger", report.Inventory.Ledger.StringFixed(2)),
			slog.String("variance", report.Inventory.Variance.StringFixed(2)))
	}
	logger.Info("reconciliation complete",
		slog.Int("waves_redriven", report.Waves.Redriven),
		slog.Int("shipments_redriven", report.Shipments.Redriven),
		slog.Int("failures", len(report.Failures)))
	return report, nil
}

// RunAll reconciles every tenant. A failing tenant is recorded on its report and
// does not stop the others; the joined errors are returned alongside the reports.
func (s *Service) RunAll(ctx context.Context, day time.Time) ([]Report, error) {
	if s.repo == nil {
		return nil, ErrRepositoryRequired
	}
	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	day = s.day(day)
	reports := make([]Report, len(tenants))
	errs := make([]error, len(tenants))
	var g errgroup.Group
	g.SetLimit(tenantConcurrency)
	for i, tenantID := range tenants {
		g.Go(func() error {
			report, err := s.Run(ctx, tenantID, day)
			if err != nil {
				report.TenantID, report.Date, report.Error = tenantID, day, err.Error()
				errs[i] = fmt.Errorf("tenant %s: %w", tenantID, err)
				s.logger.Error("tenant reconciliation failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

func (s *Service) waves(ctx context.Context, report *Report, from, to time.Time) error {
	waves, err := s.repo.CompletedWaves(ctx, report.TenantID, from, to)
	if err != nil {
		return err
	}
	keys := make([]uuid.UUID, len(waves))
	for i, w := range waves {
		keys[i] = integration.SourceKey(report.TenantID, integration.EventWaveCompleted, w.ID)
	}
	existing, err := s.repo.AllocatedKeys(ctx, report.TenantID, keys)
	if err != nil {
		return err
	}
	report.Waves.Checked = len(waves)
	for i, w := range waves {
		if existing[keys[i]] {
			continue
		}
		report.Waves.Missing++
		payload := integration.WaveCompleted{WaveID: w.ID, LaborFields: integration.LaborFields{
			TotalTasks:  w.TotalTasks,
			TotalTime:   w.TotalTime,
			WarehouseID: w.WarehouseID,
			OccurredAt:  occurred(w.CompletedAt),
		}}
		if payload.TotalTasks <= 0 {
			payload.TotalTasks = defaultWaveTasks
		}
		if payload.TotalTime.IsZero() {
			payload.TotalTime = defaultWaveTime
		}
		s.redrive(ctx, report, &report.Waves, integration.EventWaveCompleted, w.ID, payload)
	}
	return nil
}

func (s *Service) shipments(ctx context.Context, report *Report, from, to time.Time) error {
	shipments, err := s.repo.DeliveredShipments(ctx, report.TenantID, from, to)
	if err != nil {
		return err
	}
	keys := make([]uuid.UUID, len(shipments))
	for i, sh := range shipments {
		keys[i] = integration.SourceKey(report.TenantID, integration.EventShipmentDelivered, sh.ID)
	}
	existing, err := s.repo.InvoicedKeys(ctx, report.TenantID, keys)
	if err != nil {
		return err
	}
	report.Shipments.Checked = len(shipments)
	for i, sh := range shipments {
		if existing[keys[i]] {
			continue
		}
		report.Shipments.Missing++
		payload := integration.ShipmentDelivered{
			ShipmentID:  sh.ID,
			ClientID:    sh.ClientID,
			ServiceType: sh.ServiceType,
			TotalCost:   sh.TotalCost,
			Weight:      sh.Weight,
			OccurredAt:  occurred(sh.DeliveredAt),
		}
		s.redrive(ctx, report, &report.Shipments, integration.EventShipmentDelivered, sh.ID, payload)
	}
	return nil
}

// redrive replays one operation through the engine. The engine's source links make
// a replay of an already posted operation a DUPLICATE rather than a second entry.
func (s *Service) redrive(ctx context.Context, report *Report, counts *Counts, evt integration.EventType, opID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		report.Failures = append(report.Failures, Failure{Kind: evt.String(), OperationID: opID, Error: err.Error()})
		return
	}
	res := s.processor.ProcessEvent(ctx, evt.String(), raw, report.TenantID)
	switch res.Status {
	case integration.StatusProcessed:
		counts.Redriven++
	case integration.StatusDuplicate:
		counts.Duplicates++
	case integration.StatusSkipped:
		counts.Skipped++
	default:
		report.Failures = append(report.Failures, Failure{Kind: evt.String(), OperationID: opID, Error: res.Error})
	}
}

func (s *Service) inventory(ctx context.Context, report *Report) error {
	operational, err := s.repo.InventoryValue(ctx, report.TenantID)
	if err != nil {
		return err
	}
	balance, err := s.repo.AccountBalance(ctx, report.TenantID, ledger.CodeInventory)
	if err != nil {
		return err
	}
	variance := operational.Sub(balance).Abs()
	report.Inventory = InventoryCheck{
		Operational: ledger.Cents(operational),
		Ledger:      ledger.Cents(balance),
		Variance:    ledger.Cents(variance),
		Flagged:     variance.GreaterThan(s.threshold),
	}
	return nil
}

func occurred(at time.Time) integration.OccurredAt {
	if at.IsZero() {
		return integration.OccurredAt{}
	}
	return integration.OccurredAt{At: &at}
}
