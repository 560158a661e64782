package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

var errInvalidEvent = errors.New("invalid event")

// RunHistoryIngest drains the queue into every sink and commits the WAL once
// all sinks accepted a batch. Commit is a watermark, so a failed batch is held
// and retried (only against the sinks that rejected it) before anything newer
// is dequeued. Entries still held at shutdown stay uncommitted and are
// replayed on the next start.
func RunHistoryIngest(ctx context.Context, wal ports.WAL, q ports.EventQueue, sinks []ports.Sink, pol ports.Policy, obs ports.Observability) error {
	var (
		dirty   bool
		pending *heldBatch
	)
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = idleSleep(pol)
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return nil
		}
		obs.SetGauge("aegis_history_queue_length", float64(q.Len()))

		if pending == nil {
			batch := q.DequeueBatch(pol.MaxBatchSize)
			if len(batch) == 0 {
				if dirty {
					if err := wal.TruncateCommitted(); err != nil {
						obs.LogError("wal_truncate_failed", err)
					} else {
						dirty = false
					}
					obs.SetGauge("aegis_wal_size_bytes", float64(wal.Stats().SizeBytes))
				}
				if !sleepCtx(ctx, idleSleep(pol)) {
					return nil
				}
				continue
			}

			pending = hold(batch, sinks, obs)
			if len(pending.events) == 0 {
				_ = wal.Commit(pending.upto)
				dirty = true
				pending = nil
				continue
			}
		}

		start := time.Now()
		failed, err := writeAll(ctx, pending.sinks, pending.events)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			pending.sinks = failed
			wait := retry.NextBackOff()
			obs.LogError("sink_write_failed", err,
				ports.Field{Key: "events", Value: len(pending.events)},
				ports.Field{Key: "retry_in", Value: wait.String()},
			)
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}
		retry.Reset()
		obs.ObserveLatency("aegis_history_sink_latency_seconds", time.Since(start).Seconds())
		obs.IncCounter("aegis_history_ingested_total", float64(len(pending.events)))

		upto := pending.upto
		pending = nil
		if err := wal.Commit(upto); err != nil {
			obs.LogError("wal_commit_failed", err)
			continue
		}
		dirty = true
	}
}

// heldBatch is a dequeued batch that has not reached every sink yet.
type heldBatch struct {
	events []*domain.Event
	upto   ports.WALEntryID
	sinks  []ports.Sink
}

func hold(batch []ports.QueuedEvent, sinks []ports.Sink, obs ports.Observability) *heldBatch {
	h := &heldBatch{
		events: make([]*domain.Event, 0, len(batch)),
		sinks:  sinks,
	}
	for _, item := range batch {
		if item.ID > h.upto {
			h.upto = item.ID
		}
		if err := validateEvent(item.Event); err != nil {
			obs.RecordDLQ(item.ID, item.Event, err)
			continue
		}
		h.events = append(h.events, item.Event)
	}
	return h
}

// writeAll hands events to every sink and returns the sinks that still failed
// after their short retry.
func writeAll(ctx context.Context, sinks []ports.Sink, events []*domain.Event) ([]ports.Sink, error) {
	var (
		failed []ports.Sink
		errs   []error
	)
	for _, s := range sinks {
		sink := s
		op := func() error {
			return sink.WriteBatch(ctx, events)
		}
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		if err := backoff.Retry(op, b); err != nil {
			failed = append(failed, sink)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return failed, errors.Join(errs...)
}

func validateEvent(ev *domain.Event) error {
	switch {
	case ev == nil:
		return fmt.Errorf("%w: nil", errInvalidEvent)
	case ev.ID == "":
		return fmt.Errorf("%w: missing id", errInvalidEvent)
	case ev.Type == "":
		return fmt.Errorf("%w: missing type", errInvalidEvent)
	case ev.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", errInvalidEvent)
	}
	return nil
}
