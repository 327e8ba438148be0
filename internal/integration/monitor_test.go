package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type stubMonitorRepo struct {
	entries int
	all     map[Status]int
	recent  map[Status]int
	tp      Throughput

	entryWindows [][2]time.Time
	countSince   []time.Time
}

func (s *stubMonitorRepo) IntegrationEntries(_ context.Context, _ string, from, to time.Time) (int, error) {
	s.entryWindows = append(s.entryWindows, [2]time.Time{from, to})
	return s.entries, nil
}

func (s *stubMonitorRepo) EventCounts(_ context.Context, _ string, since time.Time) (map[Status]int, error) {
	s.countSince = append(s.countSince, since)
	if since.IsZero() {
		return s.all, nil
	}
	return s.recent, nil
}

func (s *stubMonitorRepo) Throughput(context.Context, string, time.Time, time.Time) (Throughput, error) {
	return s.tp, nil
}

var monitorNow = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestMonitor(repo MonitorRepository, threshold int) *Monitor {
	m := NewMonitor(repo, threshold, nil)
	m.WithNow(func() time.Time { return monitorNow })
	return m
}

func TestHealthIsHealthyWithQuietQueue(t *testing.T) {
	repo := &stubMonitorRepo{entries: 12, all: map[Status]int{StatusPending: 3, StatusProcessed: 40}, recent: map[Status]int{StatusProcessed: 12}}

	h, err := newTestMonitor(repo, 100).Health(context.Background(), "T1")

	require.NoError(t, err)
	require.True(t, h.Healthy())
	require.Equal(t, 12, h.RecentEntries)
	require.Equal(t, 3, h.Pending)
	require.Zero(t, h.Failed)
	require.Equal(t, [2]time.Time{monitorNow.Add(-time.Hour), monitorNow}, repo.entryWindows[0])
}

func TestHealthWarnsOnBacklogOrFailures(t *testing.T) {
	backlog := &stubMonitorRepo{all: map[Status]int{StatusPending: 101}}
	h, err := newTestMonitor(backlog, 100).Health(context.Background(), "T1")
	require.NoError(t, err)
	require.Equal(t, "warning", h.Status)

	failing := &stubMonitorRepo{recent: map[Status]int{StatusFailed: 1, StatusRejected: 2, StatusDead: 1}}
	h, err = newTestMonitor(failing, 100).Health(context.Background(), "T1")
	require.NoError(t, err)
	require.Equal(t, "warning", h.Status)
	require.Equal(t, 4, h.Failed)
}

func TestHealthRequiresTenant(t *testing.T) {
	_, err := newTestMonitor(&stubMonitorRepo{}, 10).Health(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestPerformanceDefaultsToLastWeek(t *testing.T) {
	repo := &stubMonitorRepo{
		entries: 30,
		recent:  map[Status]int{StatusProcessed: 28, StatusDuplicate: 2},
		tp:      Throughput{Invoices: 10, CostAllocations: 18, RevenueRecognized: decimal.RequireFromString("10800")},
	}

	p, err := newTestMonitor(repo, 10).Performance(context.Background(), "T1", time.Time{}, time.Time{})

	require.NoError(t, err)
	require.Equal(t, monitorNow.AddDate(0, 0, -7), p.From)
	require.Equal(t, monitorNow, p.To)
	require.Equal(t, 30, p.IntegrationEntries)
	require.Equal(t, 28, p.Events[StatusProcessed])
	require.Equal(t, 10, p.Invoices)
	require.Equal(t, "10800.00", p.RevenueRecognized.StringFixed(2))
}
