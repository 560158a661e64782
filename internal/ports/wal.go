package ports

import "github.com/ghalamif/AegisNet/internal/domain"

type WALEntryID uint64

type WAL interface {
	Append(ev *domain.Event) (WALEntryID, error)
	Iterate(from WALEntryID, fn func(id WALEntryID, ev *domain.Event) error) error
	Commit(upto WALEntryID) error
	TruncateCommitted() error
	Stats() WALStats
	Close() error
}

type WALStats struct {
	OldestUncommitted WALEntryID
	LatestAppended    WALEntryID
	SizeBytes         int64
}
