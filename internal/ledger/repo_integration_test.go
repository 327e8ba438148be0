//go:build integration

package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
	"github.com/odyssey-erp/wms-ledger/internal/tenant"
	"github.com/odyssey-erp/wms-ledger/internal/testutil/pgtest"
)

func TestPostgresEntriesAreNumberedUnderContention(t *testing.T) {
	pool := pgtest.NewPool(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := shared.NewAuditLogger(pool)

	_, err := tenant.NewService(tenant.NewRepository(pool), audit, logger).
		Initialize(ctx, tenant.InitInput{TenantID: "T-PG", Year: 2025})
	require.NoError(t, err)

	svc := ledger.NewService(ledger.NewRepository(pool), audit, logger)
	const writers = 8
	numbers := make(chan string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := svc.CreateEntry(ctx, ledger.EntryInput{
				TenantID:        "T-PG",
				Description:     "fuel purchase",
				TransactionDate: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
				ReferenceType:   ledger.RefManual,
				Postings: []ledger.Posting{
					ledger.Debit(ledger.CodeFuel, decimal.RequireFromString("42.10")),
					ledger.Credit(ledger.CodeCash, decimal.RequireFromString("42.10")),
				},
			})
			if assert.NoError(t, err) {
				numbers <- entry.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "duplicate entry number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, writers)

	fuel, err := svc.GetAccount(ctx, "T-PG", ledger.CodeFuel)
	require.NoError(t, err)
	assert.Equal(t, ledger.NormalDebit, fuel.NormalBalance)
}
