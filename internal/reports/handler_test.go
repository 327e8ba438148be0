package reports

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

func newReportRouter(t *testing.T) (*reportFixture, chi.Router) {
	t.Helper()
	f := newReportFixture(t)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithTenant(r.Context(), "T1")))
		})
	})
	NewHandler(nil, f.svc).MountRoutes(r)
	return f, r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandlerServesStatements(t *testing.T) {
	f, r := newReportRouter(t)
	f.post(t, "T1", januaryBook...)

	rec := get(r, "/reports/trial-balance?as_of=2025-01-31")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"isBalanced":true`)

	rec = get(r, "/reports/balance-sheet?as_of=2025-01-31")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalLiabilitiesAndEquity":"16630"`)

	rec = get(r, "/reports/cash-flow?from=2025-01-01&to=2025-01-31")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"endingCash":"13080"`)

	rec = get(r, "/reports/ratios?as_of=2025-01-31")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"currentRatio":"11.4"`)
}

func TestHandlerExportsCSV(t *testing.T) {
	f, r := newReportRouter(t)
	f.post(t, "T1", januaryBook...)

	rec := get(r, "/reports/profit-loss?from=2025-01-01&to=2025-01-31&format=csv")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "profit-loss-2025-01-01-2025-01-31.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, "Summary,,Net Income,430.00", lines[len(lines)-1])

	rec = get(r, "/reports/trial-balance?as_of=2025-01-31&format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1510,Accumulated Depreciation,Asset,0.00,50.00")
}

func TestHandlerRejectsBadDates(t *testing.T) {
	_, r := newReportRouter(t)

	rec := get(r, "/reports/trial-balance?as_of=31-01-2025")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "as_of")

	rec = get(r, "/reports/profit-loss?from=2025-02-01&to=2025-01-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid Range")
}
