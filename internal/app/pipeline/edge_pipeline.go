package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// RunHistoryEdge journals every event from ch into the WAL and hands it to the
// ingest queue. It returns when ctx is done or ch is closed.
func RunHistoryEdge(ctx context.Context, ch <-chan *domain.Event, wal ports.WAL, q ports.EventQueue, pol ports.Policy, obs ports.Observability) error {
	for {
		var ev *domain.Event
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			ev = e
		}

		if !waitForWALCapacity(ctx, wal, pol, obs) {
			continue
		}

		id, err := wal.Append(ev)
		if err != nil {
			obs.LogCritical("wal_append_failed", err, ports.Field{Key: "event_id", Value: ev.ID})
			continue
		}

		if !enqueueWithPolicy(ctx, q, id, ev, pol, obs) {
			obs.IncCounter("aegis_history_queue_dropped_total", 1)
		}
	}
}

// ReplayWAL re-enqueues entries that were journaled but never committed.
func ReplayWAL(ctx context.Context, wal ports.WAL, q ports.EventQueue, pol ports.Policy, obs ports.Observability) (int, error) {
	from := wal.Stats().OldestUncommitted
	n := 0
	err := wal.Iterate(from, func(id ports.WALEntryID, ev *domain.Event) error {
		if !enqueueWithPolicy(ctx, q, id, ev, pol, obs) {
			return fmt.Errorf("replay: queue rejected entry %d", id)
		}
		n++
		return nil
	})
	if n > 0 {
		obs.LogInfo("wal_replayed", ports.Field{Key: "entries", Value: n}, ports.Field{Key: "from", Value: uint64(from)})
	}
	return n, err
}

func idleSleep(pol ports.Policy) time.Duration {
	if pol.IdleSleep <= 0 {
		return 5 * time.Millisecond
	}
	return pol.IdleSleep
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func waitForWALCapacity(ctx context.Context, wal ports.WAL, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxWALSizeBytes <= 0 {
		return true
	}
	sleep := idleSleep(pol)

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return true
		}

		switch pol.OnWALFull {
		case "block":
			if !sleepCtx(ctx, sleep) {
				return false
			}
		case "drop":
			obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return false
		default:
			obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", pol.OnWALFull))
			return false
		}
	}
}

func enqueueWithPolicy(ctx context.Context, q ports.EventQueue, id ports.WALEntryID, ev *domain.Event, pol ports.Policy, obs ports.Observability) bool {
	sleep := idleSleep(pol)

	for {
		if ok := q.Enqueue(id, ev); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			if !sleepCtx(ctx, sleep) {
				return false
			}
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
