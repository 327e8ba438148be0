package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type memEventStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]Event
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: map[uuid.UUID]Event{}}
}

func (s *memEventStore) InsertEvent(_ context.Context, evt Event) (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[evt.ID]; ok {
		return existing, false, nil
	}
	s.events[evt.ID] = evt
	return evt, true, nil
}

func (s *memEventStore) GetEvent(_ context.Context, id uuid.UUID) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return evt, nil
}

func (s *memEventStore) BeginAttempt(_ context.Context, id uuid.UUID, at time.Time) (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[id]
	if !ok {
		return Event{}, false, ErrEventNotFound
	}
	if evt.Status.Terminal() {
		return evt, false, nil
	}
	evt.Attempts++
	evt.UpdatedAt = at
	s.events[id] = evt
	return evt, true, nil
}

func (s *memEventStore) CompleteAttempt(_ context.Context, id uuid.UUID, status Status, res Result, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[id]
	if !ok {
		return ErrEventNotFound
	}
	evt.Status = status
	evt.LastError = res.Error
	evt.Warning = res.Warning
	if res.EntryNumber != "" {
		evt.EntryNumber = res.EntryNumber
	}
	evt.UpdatedAt = at
	if status.Terminal() {
		evt.ProcessedAt = &at
	}
	s.events[id] = evt
	return nil
}

func (s *memEventStore) StaleEvents(_ context.Context, before time.Time, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, evt := range s.events {
		if (evt.Status == StatusPending || evt.Status == StatusFailed) && evt.UpdatedAt.Before(before) {
			out = append(out, evt)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memEventStore) put(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[evt.ID] = evt
}

type enqueued struct {
	id      uuid.UUID
	attempt int
}

type fakeQueue struct {
	mu    sync.Mutex
	calls []enqueued
	err   error
}

func (q *fakeQueue) EnqueueEvent(_ context.Context, id uuid.UUID, attempt int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.calls = append(q.calls, enqueued{id: id, attempt: attempt})
	return nil
}

type fakeProcessor struct {
	mu      sync.Mutex
	results []Result
	calls   int
}

func (p *fakeProcessor) ProcessEvent(_ context.Context, eventType string, _ json.RawMessage, tenantID string) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	res := Result{Status: StatusProcessed, Success: true, EntryNumber: "JE-000001"}
	if len(p.results) > 0 {
		res = p.results[0]
		p.results = p.results[1:]
	}
	res.EventType, res.TenantID = eventType, tenantID
	return res
}

type fakeKeys struct {
	seen map[string]bool
}

func (k *fakeKeys) CheckAndInsert(_ context.Context, key, module string) error {
	if k.seen[module+key] {
		return shared.ErrIdempotencyConflict
	}
	k.seen[module+key] = true
	return nil
}

var outboxNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(store EventStore, proc Processor, queue Enqueuer, keys KeyGuard) *Dispatcher {
	d := NewDispatcher(store, proc, queue, keys, DispatcherConfig{MaxAttempts: 3, PollInterval: 5 * time.Millisecond}, nil)
	d.WithNow(func() time.Time { return outboxNow })
	return d
}

func submitInput() SubmitInput {
	return SubmitInput{
		TenantID:  "T1",
		EventType: string(EventShipmentDelivered),
		Payload:   json.RawMessage(`{"shipmentId":"S1","clientId":"C1","totalCost":1000}`),
	}
}

func TestSubmitStoresPendingAndEnqueues(t *testing.T) {
	store, queue := newMemEventStore(), &fakeQueue{}
	d := newTestDispatcher(store, &fakeProcessor{}, queue, nil)

	evt, created, err := d.Submit(context.Background(), submitInput())

	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, StatusPending, evt.Status)
	require.Equal(t, []enqueued{{id: evt.ID, attempt: 0}}, queue.calls)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	d := newTestDispatcher(newMemEventStore(), &fakeProcessor{}, &fakeQueue{}, nil)

	in := submitInput()
	in.TenantID = ""
	_, _, err := d.Submit(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrTenantRequired)

	in = submitInput()
	in.Payload = json.RawMessage(`{"shipmentId":`)
	_, _, err = d.Submit(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestSubmitWithIdempotencyKeyReplays(t *testing.T) {
	store, queue := newMemEventStore(), &fakeQueue{}
	keys := &fakeKeys{seen: map[string]bool{}}
	d := newTestDispatcher(store, &fakeProcessor{}, queue, keys)
	in := submitInput()
	in.IdempotencyKey = "ship-S1"

	first, created, err := d.Submit(context.Background(), in)
	require.NoError(t, err)
	require.True(t, created)
	second, created, err := d.Submit(context.Background(), in)
	require.NoError(t, err)
	require.False(t, created)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, queue.calls, 1)
	require.Len(t, keys.seen, 1)
}

func TestSubmitSurvivesQueueOutage(t *testing.T) {
	store := newMemEventStore()
	d := newTestDispatcher(store, &fakeProcessor{}, &fakeQueue{err: errors.New("redis: connection refused")}, nil)

	evt, created, err := d.Submit(context.Background(), submitInput())

	require.NoError(t, err)
	require.True(t, created)
	stored, err := store.GetEvent(context.Background(), evt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestProcessRecordsOutcome(t *testing.T) {
	store := newMemEventStore()
	d := newTestDispatcher(store, &fakeProcessor{}, &fakeQueue{}, nil)
	evt, _, err := d.Submit(context.Background(), submitInput())
	require.NoError(t, err)

	done, err := d.Process(context.Background(), evt.ID)

	require.NoError(t, err)
	require.Equal(t, StatusProcessed, done.Status)
	require.Equal(t, "JE-000001", done.EntryNumber)
	require.Equal(t, 1, done.Attempts)
	require.NotNil(t, done.ProcessedAt)
}

func TestProcessRetriesTransientFailureUntilDead(t *testing.T) {
	store := newMemEventStore()
	transient := Result{Status: StatusFailed, Error: "db: connection reset", Retryable: true}
	proc := &fakeProcessor{results: []Result{transient, transient, transient}}
	d := newTestDispatcher(store, proc, &fakeQueue{}, nil)
	evt, _, err := d.Submit(context.Background(), submitInput())
	require.NoError(t, err)

	_, err = d.Process(context.Background(), evt.ID)
	require.ErrorIs(t, err, ErrRetryLater)
	_, err = d.Process(context.Background(), evt.ID)
	require.ErrorIs(t, err, ErrRetryLater)
	last, err := d.Process(context.Background(), evt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDead, last.Status)
	require.Equal(t, 3, last.Attempts)

	again, err := d.Process(context.Background(), evt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDead, again.Status)
	require.Equal(t, 3, proc.calls)
}

func TestProcessRejectsPermanentFailure(t *testing.T) {
	store := newMemEventStore()
	proc := &fakeProcessor{results: []Result{{Status: StatusFailed, Error: "integration: invalid payload"}}}
	d := newTestDispatcher(store, proc, &fakeQueue{}, nil)
	evt, _, err := d.Submit(context.Background(), submitInput())
	require.NoError(t, err)

	done, err := d.Process(context.Background(), evt.ID)

	require.NoError(t, err)
	require.Equal(t, StatusRejected, done.Status)
	require.Equal(t, "integration: invalid payload", done.LastError)
}

func TestAwaitReturnsOnceProcessed(t *testing.T) {
	store := newMemEventStore()
	d := newTestDispatcher(store, &fakeProcessor{}, &fakeQueue{}, nil)
	evt, _, err := d.Submit(context.Background(), submitInput())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = d.Process(context.Background(), evt.ID)
	}()
	done, err := d.Await(context.Background(), "T1", evt.ID, 2*time.Second)

	require.NoError(t, err)
	require.Equal(t, StatusProcessed, done.Status)
}

func TestAwaitTimesOutWhilePending(t *testing.T) {
	store := newMemEventStore()
	d := newTestDispatcher(store, &fakeProcessor{}, &fakeQueue{}, nil)
	evt, _, err := d.Submit(context.Background(), submitInput())
	require.NoError(t, err)

	got, err := d.Await(context.Background(), "T1", evt.ID, 30*time.Millisecond)

	require.ErrorIs(t, err, ErrAwaitTimeout)
	require.Equal(t, StatusPending, got.Status)
}

func TestGetIsTenantScoped(t *testing.T) {
	store := newMemEventStore()
	d := newTestDispatcher(store, &fakeProcessor{}, &fakeQueue{}, nil)
	evt, _, err := d.Submit(context.Background(), submitInput())
	require.NoError(t, err)

	_, err = d.Get(context.Background(), "T2", evt.ID)
	require.ErrorIs(t, err, ErrEventNotFound)
	_, err = d.Await(context.Background(), "T2", evt.ID, time.Second)
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestRequeueRedeliversStaleAndBuriesExhausted(t *testing.T) {
	store, queue := newMemEventStore(), &fakeQueue{}
	d := newTestDispatcher(store, &fakeProcessor{}, queue, nil)
	old := outboxNow.Add(-time.Hour)
	stale := Event{ID: uuid.New(), TenantID: "T1", Type: "utility.bill", Status: StatusFailed, Attempts: 1, UpdatedAt: old}
	exhausted := Event{ID: uuid.New(), TenantID: "T1", Type: "utility.bill", Status: StatusFailed, Attempts: 3, UpdatedAt: old, LastError: "timeout"}
	fresh := Event{ID: uuid.New(), TenantID: "T1", Type: "utility.bill", Status: StatusPending, UpdatedAt: outboxNow}
	done := Event{ID: uuid.New(), TenantID: "T1", Type: "utility.bill", Status: StatusProcessed, UpdatedAt: old}
	for _, evt := range []Event{stale, exhausted, fresh, done} {
		store.put(evt)
	}

	report, err := d.Requeue(context.Background(), 15*time.Minute, 100)

	require.NoError(t, err)
	require.Equal(t, RequeueReport{Requeued: 1, Dead: 1}, report)
	require.Equal(t, []enqueued{{id: stale.ID, attempt: 2}}, queue.calls)
	buried, err := store.GetEvent(context.Background(), exhausted.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDead, buried.Status)
	require.Equal(t, "timeout", buried.LastError)
}

func TestOutboxEndToEndWithEngine(t *testing.T) {
	f := newEngineFixture(t, "T1")
	store := newMemEventStore()
	d := newTestDispatcher(store, f.engine, &fakeQueue{}, nil)

	evt, _, err := d.Submit(context.Background(), submitInput())
	require.NoError(t, err)
	done, err := d.Process(context.Background(), evt.ID)

	require.NoError(t, err)
	require.Equal(t, StatusProcessed, done.Status)
	require.Equal(t, "JE-000001", done.EntryNumber)
	require.Len(t, f.store.Entries("T1"), 1)
}
