package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

func TestWaitForWALCapacityBlockThenSucceed(t *testing.T) {
	wal := &mockWAL{
		sizes: []int64{150, 50},
	}
	pol := ports.Policy{
		MaxWALSizeBytes: 100,
		OnWALFull:       "block",
		IdleSleep:       time.Millisecond,
	}
	obs := &mockObs{}

	if ok := waitForWALCapacity(context.Background(), wal, pol, obs); !ok {
		t.Fatalf("expected waitForWALCapacity to eventually succeed")
	}
	if wal.calls < 2 {
		t.Fatalf("expected multiple stats calls, got %d", wal.calls)
	}
}

func TestWaitForWALCapacityBlockHonorsCancel(t *testing.T) {
	wal := &mockWAL{sizes: []int64{500}}
	pol := ports.Policy{
		MaxWALSizeBytes: 100,
		OnWALFull:       "block",
		IdleSleep:       time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if ok := waitForWALCapacity(ctx, wal, pol, &mockObs{}); ok {
		t.Fatalf("expected blocked WAL wait to give up on cancellation")
	}
}

func TestWaitForWALCapacityDrop(t *testing.T) {
	wal := &mockWAL{
		sizes: []int64{200, 200},
	}
	pol := ports.Policy{
		MaxWALSizeBytes: 100,
		OnWALFull:       "drop",
	}
	obs := &mockObs{}

	if ok := waitForWALCapacity(context.Background(), wal, pol, obs); ok {
		t.Fatalf("expected waitForWALCapacity to drop and return false")
	}
	if len(obs.errs()) == 0 {
		t.Fatalf("expected error to be logged")
	}
}

func TestEnqueueWithPolicyBlock(t *testing.T) {
	queue := &mockQueue{}
	queue.failures = 1

	pol := ports.Policy{
		OnQueueFull: "block",
		IdleSleep:   time.Millisecond,
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(context.Background(), queue, 1, testEvent(), pol, obs); !ok {
		t.Fatalf("expected enqueue to eventually succeed")
	}
	if queue.calls != 2 {
		t.Fatalf("expected two enqueue attempts, got %d", queue.calls)
	}
}

func TestEnqueueWithPolicyDrop(t *testing.T) {
	queue := &mockQueue{failAlways: true}
	pol := ports.Policy{
		OnQueueFull: "drop",
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(context.Background(), queue, 1, testEvent(), pol, obs); ok {
		t.Fatalf("expected enqueueWithPolicy to fail")
	}
	if len(obs.errs()) == 0 {
		t.Fatalf("expected drop to log an error")
	}
}

func TestRunHistoryEdgeJournalsAndEnqueues(t *testing.T) {
	wal := &memWAL{}
	queue := &mockQueue{}
	ch := make(chan *domain.Event, 3)
	for i := 0; i < 3; i++ {
		ch <- testEvent()
	}
	close(ch)

	err := RunHistoryEdge(context.Background(), ch, wal, queue, ports.Policy{OnQueueFull: "drop"}, &mockObs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wal.entries) != 3 {
		t.Fatalf("expected 3 WAL entries, got %d", len(wal.entries))
	}
	if queue.calls != 3 {
		t.Fatalf("expected 3 enqueues, got %d", queue.calls)
	}
}

func testEvent() *domain.Event {
	return domain.NewMetricsEvent(domain.Sample{Timestamp: time.Unix(1700000000, 0)}, nil)
}

type mockWAL struct {
	ports.WAL
	sizes []int64
	calls int
}

func (m *mockWAL) Stats() ports.WALStats {
	idx := m.calls
	if idx >= len(m.sizes) {
		idx = len(m.sizes) - 1
	}
	m.calls++
	return ports.WALStats{
		SizeBytes: m.sizes[idx],
	}
}

// memWAL is a minimal in-memory WAL for loop tests.
type memWAL struct {
	mu        sync.Mutex
	entries   []*domain.Event
	committed ports.WALEntryID
	truncated int
}

func (m *memWAL) Append(ev *domain.Event) (ports.WALEntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, ev)
	return ports.WALEntryID(len(m.entries)), nil
}

func (m *memWAL) Iterate(from ports.WALEntryID, fn func(ports.WALEntryID, *domain.Event) error) error {
	m.mu.Lock()
	entries := append([]*domain.Event(nil), m.entries...)
	m.mu.Unlock()
	for i, ev := range entries {
		id := ports.WALEntryID(i + 1)
		if id < from {
			continue
		}
		if err := fn(id, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *memWAL) Commit(upto ports.WALEntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if upto > m.committed {
		m.committed = upto
	}
	return nil
}

func (m *memWAL) TruncateCommitted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncated++
	return nil
}

func (m *memWAL) Stats() ports.WALStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ports.WALStats{OldestUncommitted: m.committed + 1, LatestAppended: ports.WALEntryID(len(m.entries))}
}

func (m *memWAL) Close() error { return nil }

func (m *memWAL) committedID() ports.WALEntryID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

type mockQueue struct {
	failures   int32
	failAlways bool
	calls      int
}

func (m *mockQueue) Enqueue(id ports.WALEntryID, ev *domain.Event) bool {
	m.calls++
	if m.failAlways {
		return false
	}
	if atomic.LoadInt32(&m.failures) > 0 {
		atomic.AddInt32(&m.failures, -1)
		return false
	}
	return true
}

func (m *mockQueue) DequeueBatch(int) []ports.QueuedEvent { return nil }
func (m *mockQueue) Len() int                             { return 0 }

type mockObs struct {
	ports.NopObservability
	mu       sync.Mutex
	errors   []error
	dlq      []ports.WALEntryID
	counters map[string]float64
}

func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = errors.New("nil error")
	}
	m.errors = append(m.errors, err)
}

func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]float64{}
	}
	m.counters[name] += v
}

func (m *mockObs) RecordDLQ(id ports.WALEntryID, _ *domain.Event, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, id)
}

func (m *mockObs) errs() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.errors...)
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *mockObs) dlqIDs() []ports.WALEntryID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.WALEntryID(nil), m.dlq...)
}
