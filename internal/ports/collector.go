package ports

import (
	"context"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
)

// Prober measures latency and loss towards a host. Implementations must honor
// ctx and return domain.ErrProbeUnavailable when nothing could be measured.
type Prober interface {
	Probe(ctx context.Context, host string) (domain.PingResult, error)
}

// Counters is a cumulative byte counter reading.
type Counters struct {
	BytesSent uint64
	BytesRecv uint64
	At        time.Time
}

// CounterReader reads cumulative interface byte counters.
type CounterReader interface {
	ReadCounters() (Counters, error)
}

// GatewayResolver finds the local default gateway address.
type GatewayResolver interface {
	DefaultGateway() (string, error)
}

// WindowRecorder persists the most recent samples for out-of-process consumers.
type WindowRecorder interface {
	Record(samples []domain.Sample) error
}
