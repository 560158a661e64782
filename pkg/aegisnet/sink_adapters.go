package aegisnet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/AegisNet/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("aegisnet: channel sink closed")

// EventBatchSink is invoked with ordered batches drained from the history queue.
type EventBatchSink func([]Event) error

// NewCallbackSink adapts an EventBatchSink into a Sink so callers can plug
// arbitrary functions into the history pipeline without defining structs.
func NewCallbackSink(name string, fn EventBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes history batches via a channel; it returns the sink,
// the read-only channel, and a close function the caller should invoke
// during shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Event, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Event, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   EventBatchSink
}

func (s *callbackSink) WriteBatch(_ context.Context, events []*domain.Event) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(events) == 0 {
		return nil
	}
	return s.fn(copyBatch(events))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []Event
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

func (s *channelSink) WriteBatch(ctx context.Context, events []*domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}
	if len(events) == 0 {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- copyBatch(events):
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		// wait for in-flight writers before closing the data channel
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

func copyBatch(events []*domain.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out
}

// Events subscribes to the live feed and returns its channel plus a cancel
// function. The channel is closed when cancel is called or the runtime stops.
func (r *Runtime) Events(ctx context.Context, buffer int) (<-chan *Event, func(), error) {
	o, err := r.hub.Subscribe(ctx, buffer)
	if err != nil {
		return nil, nil, err
	}
	return o.C, func() { r.hub.Unsubscribe(o) }, nil
}
