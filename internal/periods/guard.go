package periods

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/wms-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

const maxGuardBody = 1 << 20

// ClosedPeriodFinder is the read side consulted before operational writes.
type ClosedPeriodFinder interface {
	FindClosedPeriod(ctx context.Context, tenantID string, date time.Time) (*Period, error)
}

// Guard rejects write requests whose JSON body carries a transactionDate inside a CLOSED period.
// Bodies without a date pass through untouched.
func Guard(finder ClosedPeriodFinder, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxGuardBody))
			_ = r.Body.Close()
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))

			date, ok, err := transactionDate(raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Transaction Date", err.Error())
				return
			}
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			tenantID := shared.TenantFromContext(r.Context())
			period, err := finder.FindClosedPeriod(r.Context(), tenantID, date)
			if err != nil {
				logger.Error("period guard lookup", slog.String("tenant", tenantID), slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			if period != nil {
				httpx.Problem(w, http.StatusConflict, "Period Closed",
					fmt.Sprintf("%s falls in closed period %s", date.Format(time.DateOnly), period.Name))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func transactionDate(raw []byte) (time.Time, bool, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return time.Time{}, false, nil
	}
	var body struct {
		TransactionDate string `json:"transactionDate"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.TransactionDate == "" {
		return time.Time{}, false, nil
	}
	date, err := ParseDate(body.TransactionDate)
	if err != nil {
		return time.Time{}, false, err
	}
	return date, true, nil
}

// ParseDate accepts YYYY-MM-DD or RFC3339.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidPeriod, s)
	}
	return t.UTC(), nil
}
