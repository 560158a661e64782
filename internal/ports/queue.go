package ports

import "github.com/ghalamif/AegisNet/internal/domain"

type QueuedEvent struct {
	ID    WALEntryID
	Event *domain.Event
}

type EventQueue interface {
	Enqueue(id WALEntryID, ev *domain.Event) bool
	DequeueBatch(max int) []QueuedEvent
	Len() int
}
