package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/periods"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// TxRepository performs the initialization writes. Every insert is a no-op when the row exists.
type TxRepository interface {
	InsertTenant(ctx context.Context, id, name string) (bool, error)
	InsertAccount(ctx context.Context, tenantID string, account ledger.ChartAccount) (bool, error)
	InsertSequence(ctx context.Context, tenantID string) (bool, error)
	// InsertPeriod skips periods overlapping an existing one.
	InsertPeriod(ctx context.Context, in periods.CreateInput) (bool, error)
}

// Repository opens initialization transactions and lists tenants.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// AuditPort records the initialization.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service sets up the books of new tenants.
type Service struct {
	repo      Repository
	audit     AuditPort
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		audit:     audit,
		validator: validator.New(),
		logger:    logger.With(slog.String("component", "tenant")),
		now:       time.Now,
	}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Initialize creates the tenant row, the default chart of accounts, the entry
// sequence and twelve monthly periods for the year, all in one transaction.
func (s *Service) Initialize(ctx context.Context, in InitInput) (InitResult, error) {
	if in.TenantID == "" {
		return InitResult{}, shared.ErrTenantRequired
	}
	if err := s.validator.Struct(in); err != nil {
		return InitResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Year == 0 {
		in.Year = s.now().UTC().Year()
	}
	if in.Name == "" {
		in.Name = in.TenantID
	}

	res := InitResult{TenantID: in.TenantID, Year: in.Year}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertTenant(ctx, in.TenantID, in.Name)
		if err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		res.TenantCreated = created
		for _, account := range ledger.DefaultChart() {
			created, err := tx.InsertAccount(ctx, in.TenantID, account)
			if err != nil {
				return fmt.Errorf("insert account %s: %w", account.Code, err)
			}
			if created {
				res.AccountsCreated++
			}
		}
		if res.SequenceCreated, err = tx.InsertSequence(ctx, in.TenantID); err != nil {
			return fmt.Errorf("insert sequence: %w", err)
		}
		for _, p := range periods.MonthlyPeriods(in.TenantID, in.Year) {
			created, err := tx.InsertPeriod(ctx, p)
			if err != nil {
				return fmt.Errorf("insert period %s: %w", p.Name, err)
			}
			if created {
				res.PeriodsCreated++
			}
		}
		return nil
	})
	if err != nil {
		return InitResult{}, err
	}

	if res.Changed() {
		s.record(ctx, in, res)
	}
	s.logger.Info("tenant initialized",
		slog.String("tenant_id", in.TenantID),
		slog.Int("year", in.Year),
		slog.Int("accounts", res.AccountsCreated),
		slog.Int("periods", res.PeriodsCreated))
	return res, nil
}

// ListTenants returns every tenant.
func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	return s.repo.ListTenants(ctx)
}

func (s *Service) record(ctx context.Context, in InitInput, res InitResult) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: in.TenantID,
		Actor:    in.Actor,
		Action:   "tenant.initialized",
		Entity:   "tenant",
		EntityID: in.TenantID,
		Meta: map[string]any{
			"year":     strconv.Itoa(res.Year),
			"accounts": res.AccountsCreated,
			"periods":  res.PeriodsCreated,
		},
		At: s.now(),
	})
	if err != nil {
		s.logger.Warn("audit tenant initialization", slog.String("tenant_id", in.TenantID), slog.Any("error", err))
	}
}
