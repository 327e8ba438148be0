package reports

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// Repository reads aggregated ledger activity.
type Repository interface {
	AccountActivity(ctx context.Context, q ActivityQuery) ([]AccountActivity, error)
	CashLines(ctx context.Context, tenantID string, codes []string, from, to time.Time) ([]CashLine, error)
	// CashBalance sums debit minus credit of codes on lines dated before the given day.
	CashBalance(ctx context.Context, tenantID string, codes []string, before time.Time) (decimal.Decimal, error)
}

// Service builds financial statements behind the report cache.
type Service struct {
	repo   Repository
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Repository with a Cache. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger.With(slog.String("component", "reports")), now: time.Now}
}

// WithNow overrides the clock used for default dates.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) asOf(t time.Time) time.Time {
	if t.IsZero() {
		return ledger.DateOnly(s.now())
	}
	return ledger.DateOnly(t)
}

// window defaults an empty range to the month to date.
func (s *Service) window(from, to time.Time) (time.Time, time.Time, error) {
	to = s.asOf(to)
	if from.IsZero() {
		from = time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	from = ledger.DateOnly(from)
	if from.After(to) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return from, to, nil
}

// cached deduplicates concurrent builds of the same report and serves repeat reads from Redis.
// A Redis failure degrades to building the report directly.
func (s *Service) cached(ctx context.Context, tenantID string, dest any, build func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, tenantID, parts...)
	if err != nil {
		s.logger.Warn("report cache version", slog.String("tenant", tenantID), slog.Any("error", err))
		key = strings.Join(append([]string{"reports", tenantID}, parts...), ":")
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var (
			built    any
			buildErr error
		)
		loader := func(ctx context.Context) (any, error) {
			built, buildErr = build(ctx)
			return built, buildErr
		}
		var raw json.RawMessage
		err := s.cache.FetchJSON(ctx, key, &raw, loader)
		if err == nil {
			return raw, nil
		}
		if buildErr != nil {
			return nil, buildErr
		}
		s.logger.Warn("report cache", slog.String("key", key), slog.Any("error", err))
		if built == nil {
			if built, err = build(ctx); err != nil {
				return nil, err
			}
		}
		b, err := json.Marshal(built)
		return json.RawMessage(b), err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}

// TrialBalance reports every non-zero account as of asOf.
func (s *Service) TrialBalance(ctx context.Context, tenantID string, asOf time.Time) (TrialBalance, error) {
	if tenantID == "" {
		return TrialBalance{}, shared.ErrTenantRequired
	}
	asOf = s.asOf(asOf)
	var out TrialBalance
	err := s.cached(ctx, tenantID, &out, func(ctx context.Context) (any, error) {
		accounts, err := s.repo.AccountActivity(ctx, ActivityQuery{TenantID: tenantID, To: asOf})
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(tenantID, asOf, accounts), nil
	}, "trial-balance", asOf.Format(time.DateOnly))
	return out, err
}

// BalanceSheet reports the financial position as of asOf.
func (s *Service) BalanceSheet(ctx context.Context, tenantID string, asOf time.Time) (BalanceSheet, error) {
	if tenantID == "" {
		return BalanceSheet{}, shared.ErrTenantRequired
	}
	asOf = s.asOf(asOf)
	var out BalanceSheet
	err := s.cached(ctx, tenantID, &out, func(ctx context.Context) (any, error) {
		accounts, err := s.repo.AccountActivity(ctx, ActivityQuery{TenantID: tenantID, To: asOf})
		if err != nil {
			return nil, err
		}
		return BuildBalanceSheet(tenantID, asOf, accounts), nil
	}, "balance-sheet", asOf.Format(time.DateOnly))
	return out, err
}

// ProfitAndLoss reports revenue and expenses in [from, to]. Closing entries are excluded
// so a closed period still shows its activity.
func (s *Service) ProfitAndLoss(ctx context.Context, tenantID string, from, to time.Time) (ProfitAndLoss, error) {
	if tenantID == "" {
		return ProfitAndLoss{}, shared.ErrTenantRequired
	}
	from, to, err := s.window(from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	var out ProfitAndLoss
	err = s.cached(ctx, tenantID, &out, func(ctx context.Context) (any, error) {
		accounts, err := s.repo.AccountActivity(ctx, ActivityQuery{
			TenantID: tenantID, From: from, To: to, ExcludeReference: ledger.RefPeriodClose,
		})
		if err != nil {
			return nil, err
		}
		return BuildProfitAndLoss(tenantID, from, to, accounts), nil
	}, "profit-loss", from.Format(time.DateOnly), to.Format(time.DateOnly))
	return out, err
}

// CashFlow reports cash account movements in [from, to].
func (s *Service) CashFlow(ctx context.Context, tenantID string, from, to time.Time) (CashFlow, error) {
	if tenantID == "" {
		return CashFlow{}, shared.ErrTenantRequired
	}
	from, to, err := s.window(from, to)
	if err != nil {
		return CashFlow{}, err
	}
	var out CashFlow
	err = s.cached(ctx, tenantID, &out, func(ctx context.Context) (any, error) {
		var (
			beginning decimal.Decimal
			lines     []CashLine
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			beginning, err = s.repo.CashBalance(gctx, tenantID, CashAccounts, from)
			return err
		})
		g.Go(func() error {
			var err error
			lines, err = s.repo.CashLines(gctx, tenantID, CashAccounts, from, to)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return BuildCashFlow(tenantID, from, to, beginning, lines), nil
	}, "cash-flow", from.Format(time.DateOnly), to.Format(time.DateOnly))
	return out, err
}

// Ratios derives liquidity and leverage from the balance sheet and margins from the year to date.
func (s *Service) Ratios(ctx context.Context, tenantID string, asOf time.Time) (Ratios, error) {
	if tenantID == "" {
		return Ratios{}, shared.ErrTenantRequired
	}
	asOf = s.asOf(asOf)
	var (
		bs  BalanceSheet
		ytd ProfitAndLoss
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bs, err = s.BalanceSheet(gctx, tenantID, asOf)
		return err
	})
	g.Go(func() error {
		var err error
		ytd, err = s.ProfitAndLoss(gctx, tenantID, time.Date(asOf.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), asOf)
		return err
	})
	if err := g.Wait(); err != nil {
		return Ratios{}, err
	}
	return BuildRatios(bs, ytd), nil
}
