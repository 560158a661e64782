package fanout

import (
	"context"
	"sync"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

const (
	DefaultInboxSize      = 256
	DefaultObserverBuffer = 64
)

// Observer is one live subscriber. Events arrive on C until the observer is
// unsubscribed or the hub stops, after which C is closed.
type Observer struct {
	C  <-chan *domain.Event
	ch chan *domain.Event
	id uint64
}

type subReq struct {
	buffer int
	reply  chan *Observer
}

// Hub fans events out to observers. A single goroutine owns the observer set,
// so Publish never waits on a slow observer.
type Hub struct {
	inbox   chan *domain.Event
	subs    chan subReq
	unsubs  chan *Observer
	done    chan struct{}
	stopped chan struct{}

	bufSize int
	obs     ports.Observability

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewHub(inboxSize, observerBuffer int, obs ports.Observability) *Hub {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	if observerBuffer <= 0 {
		observerBuffer = DefaultObserverBuffer
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Hub{
		inbox:   make(chan *domain.Event, inboxSize),
		subs:    make(chan subReq),
		unsubs:  make(chan *Observer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		bufSize: observerBuffer,
		obs:     obs,
	}
}

// Publish enqueues ev without blocking. It returns false when the inbox is
// full or the hub has stopped.
func (h *Hub) Publish(ev *domain.Event) bool {
	if ev == nil {
		return false
	}
	select {
	case <-h.stopped:
		return false
	default:
	}
	select {
	case h.inbox <- ev:
		return true
	default:
		return false
	}
}

// Subscribe registers an observer. buffer <= 0 uses the hub default.
func (h *Hub) Subscribe(ctx context.Context, buffer int) (*Observer, error) {
	req := subReq{buffer: buffer, reply: make(chan *Observer, 1)}
	select {
	case h.subs <- req:
	case <-h.stopped:
		return nil, errHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-req.reply, nil
}

// Unsubscribe removes o and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(o *Observer) {
	if o == nil {
		return
	}
	select {
	case h.unsubs <- o:
	case <-h.stopped:
	}
}

// Run delivers events until ctx is cancelled or Stop is called. Every
// remaining observer channel is closed on exit.
func (h *Hub) Run(ctx context.Context) error {
	started := false
	h.startOnce.Do(func() { started = true })
	if !started {
		return errHubRunning
	}
	defer close(h.stopped)

	observers := make(map[uint64]*Observer)
	var nextID uint64
	defer func() {
		for _, o := range observers {
			close(o.ch)
		}
		h.obs.SetGauge("aegis_fanout_observers", 0)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil

		case req := <-h.subs:
			nextID++
			size := req.buffer
			if size <= 0 {
				size = h.bufSize
			}
			ch := make(chan *domain.Event, size)
			o := &Observer{C: ch, ch: ch, id: nextID}
			observers[o.id] = o
			req.reply <- o
			h.obs.SetGauge("aegis_fanout_observers", float64(len(observers)))

		case o := <-h.unsubs:
			if _, ok := observers[o.id]; ok {
				delete(observers, o.id)
				close(o.ch)
				h.obs.SetGauge("aegis_fanout_observers", float64(len(observers)))
			}

		case ev := <-h.inbox:
			for _, o := range observers {
				h.deliver(o, ev)
			}
		}
	}
}

// deliver drops the oldest buffered event when the observer is behind.
func (h *Hub) deliver(o *Observer, ev *domain.Event) {
	for {
		select {
		case o.ch <- ev:
			return
		default:
		}
		select {
		case <-o.ch:
			h.obs.IncCounter("aegis_fanout_dropped_total", 1)
		default:
		}
	}
}

// Stop ends Run. It does not wait; use Done for that.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.stopped
}

var _ ports.Publisher = (*Hub)(nil)
