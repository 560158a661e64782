package queue

import (
	"testing"

	"github.com/ghalamif/AegisNet/internal/domain"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	e1 := &domain.Event{ID: "e1", Type: domain.EventMetrics}
	e2 := &domain.Event{ID: "e2", Type: domain.EventAttackDetection}

	if !q.Enqueue(1, e1) || !q.Enqueue(2, e2) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != 1 || batch[0].Event.ID != "e1" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].ID != 2 {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
	if q.DequeueBatch(5) != nil {
		t.Fatalf("empty queue must return nil batch")
	}
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)

	ev := &domain.Event{ID: "cap", Type: domain.EventMetrics}

	if !q.Enqueue(1, ev) || !q.Enqueue(2, ev) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(3, ev) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(4, ev) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}
