package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

type sliceQueue struct {
	mu   sync.Mutex
	data []ports.QueuedEvent
}

func (q *sliceQueue) Enqueue(id ports.WALEntryID, ev *domain.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = append(q.data, ports.QueuedEvent{ID: id, Event: ev})
	return true
}

func (q *sliceQueue) DequeueBatch(max int) []ports.QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := append([]ports.QueuedEvent(nil), q.data[:max]...)
	q.data = q.data[max:]
	return out
}

func (q *sliceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

type recordingSink struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (s *recordingSink) WriteBatch(_ context.Context, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestRunHistoryIngestWritesAndCommits(t *testing.T) {
	wal := &memWAL{}
	q := &sliceQueue{}
	for i := 0; i < 5; i++ {
		ev := testEvent()
		id, err := wal.Append(ev)
		require.NoError(t, err)
		q.Enqueue(id, ev)
	}
	sink := &recordingSink{}
	obs := &mockObs{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunHistoryIngest(ctx, wal, q, []ports.Sink{sink}, ports.Policy{MaxBatchSize: 2, IdleSleep: time.Millisecond}, obs)
	}()

	require.Eventually(t, func() bool { return wal.committedID() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 5, sink.count())
	assert.Equal(t, 5.0, obs.counter("aegis_history_ingested_total"))
	wal.mu.Lock()
	assert.Positive(t, wal.truncated)
	wal.mu.Unlock()
}

func TestRunHistoryIngestSendsInvalidEventsToDLQ(t *testing.T) {
	wal := &memWAL{}
	q := &sliceQueue{}
	q.Enqueue(1, &domain.Event{ID: "no-type", Timestamp: time.Now()})
	q.Enqueue(2, testEvent())
	sink := &recordingSink{}
	obs := &mockObs{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunHistoryIngest(ctx, wal, q, []ports.Sink{sink}, ports.Policy{MaxBatchSize: 10, IdleSleep: time.Millisecond}, obs)
	}()

	require.Eventually(t, func() bool { return wal.committedID() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []ports.WALEntryID{1}, obs.dlqIDs())
	assert.Equal(t, 1, sink.count())
}

func TestReplayWALEnqueuesUncommitted(t *testing.T) {
	wal := &memWAL{}
	for i := 0; i < 4; i++ {
		_, err := wal.Append(testEvent())
		require.NoError(t, err)
	}
	require.NoError(t, wal.Commit(2))

	q := &sliceQueue{}
	n, err := ReplayWAL(context.Background(), wal, q, ports.Policy{OnQueueFull: "drop"}, &mockObs{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	batch := q.DequeueBatch(0)
	require.Len(t, batch, 2)
	assert.Equal(t, ports.WALEntryID(3), batch[0].ID)
	assert.Equal(t, ports.WALEntryID(4), batch[1].ID)
}

type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []*domain.Event
}

func (s *flakySink) WriteBatch(_ context.Context, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) received() []*domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Event(nil), s.events...)
}

func TestRunHistoryIngestHoldsFailedBatchUntilSinkRecovers(t *testing.T) {
	wal := &memWAL{}
	q := &sliceQueue{}
	first, second := testEvent(), testEvent()
	for _, ev := range []*domain.Event{first, second} {
		id, err := wal.Append(ev)
		require.NoError(t, err)
		q.Enqueue(id, ev)
	}

	// Outlasts the per-sink retries so the batch has to be held.
	flaky := &flakySink{failures: 5}
	steady := &recordingSink{}
	obs := &mockObs{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunHistoryIngest(ctx, wal, q, []ports.Sink{steady, flaky}, ports.Policy{MaxBatchSize: 1, IdleSleep: time.Millisecond}, obs)
	}()

	require.Eventually(t, func() bool { return wal.committedID() == 2 }, 15*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got := flaky.received()
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
	assert.Equal(t, 2, steady.count(), "a sink that already accepted the batch is not written again")
	assert.NotEmpty(t, obs.errs())
}

func TestRunHistoryIngestLeavesHeldBatchUncommittedOnShutdown(t *testing.T) {
	wal := &memWAL{}
	q := &sliceQueue{}
	ev := testEvent()
	id, err := wal.Append(ev)
	require.NoError(t, err)
	q.Enqueue(id, ev)

	down := &flakySink{failures: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunHistoryIngest(ctx, wal, q, []ports.Sink{down}, ports.Policy{MaxBatchSize: 10, IdleSleep: time.Millisecond}, &mockObs{})
	}()

	require.Eventually(t, func() bool {
		down.mu.Lock()
		defer down.mu.Unlock()
		return down.calls >= 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, wal.committedID())
	replayed := &sliceQueue{}
	n, err := ReplayWAL(context.Background(), wal, replayed, ports.Policy{OnQueueFull: "drop"}, &mockObs{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// boundedQueue rejects enqueues beyond max, like the in-memory adapter.
type boundedQueue struct {
	sliceQueue
	max int
}

func (q *boundedQueue) Enqueue(id ports.WALEntryID, ev *domain.Event) bool {
	if q.Len() >= q.max {
		return false
	}
	return q.sliceQueue.Enqueue(id, ev)
}

func TestReplayLargerThanQueueDrainsWithBlockPolicy(t *testing.T) {
	wal := &memWAL{}
	for i := 0; i < 5; i++ {
		_, err := wal.Append(testEvent())
		require.NoError(t, err)
	}
	q := &boundedQueue{max: 2}
	sink := &recordingSink{}
	pol := ports.Policy{MaxQueueLen: 2, MaxBatchSize: 2, OnQueueFull: "block", IdleSleep: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- RunHistoryIngest(ctx, wal, q, []ports.Sink{sink}, pol, &mockObs{}) }()

	replayed := make(chan int, 1)
	go func() {
		n, err := ReplayWAL(ctx, wal, q, pol, &mockObs{})
		assert.NoError(t, err)
		replayed <- n
	}()

	select {
	case n := <-replayed:
		assert.Equal(t, 5, n)
	case <-time.After(2 * time.Second):
		t.Fatalf("replay stalled on a full queue")
	}
	require.Eventually(t, func() bool { return wal.committedID() == 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, sink.count())

	cancel()
	require.NoError(t, <-done)
}
