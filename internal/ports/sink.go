package ports

import (
	"context"

	"github.com/ghalamif/AegisNet/internal/domain"
)

// Publisher hands events to the live telemetry fan-out. Publish must never
// block; it reports false when the event was dropped.
type Publisher interface {
	Publish(ev *domain.Event) bool
}

// Sink persists batches of telemetry events (SQL history, Redis, ...).
type Sink interface {
	WriteBatch(ctx context.Context, events []*domain.Event) error
	Name() string
}
