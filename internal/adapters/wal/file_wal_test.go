package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

func metricsEvent(latency float64) *domain.Event {
	return domain.NewMetricsEvent(domain.Sample{
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		ExternalPing: domain.PingResult{Latency: domain.Float(latency), Loss: domain.Float(0)},
	}, nil)
}

func TestFileWALAppendIterateAndReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}

	e1 := metricsEvent(10)
	e2 := metricsEvent(20)

	id1, err := w.Append(e1)
	if err != nil || id1 == 0 {
		t.Fatalf("append event 1: %v id=%d", err, id1)
	}
	id2, err := w.Append(e2)
	if err != nil || id2 == 0 {
		t.Fatalf("append event 2: %v id=%d", err, id2)
	}

	var iterated []string
	if err := w.Iterate(1, func(id ports.WALEntryID, ev *domain.Event) error {
		iterated = append(iterated, ev.ID)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(iterated) != 2 || iterated[0] != e1.ID || iterated[1] != e2.ID {
		t.Fatalf("expected both events in order, got %v", iterated)
	}

	if err := w.Commit(id2); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close wal: %v", err)
	}

	// Reopen and ensure committed metadata was persisted.
	w2, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}

	stats := w2.Stats()
	if stats.LatestAppended != id2 {
		t.Fatalf("expected latest appended %d, got %d", id2, stats.LatestAppended)
	}
	if stats.OldestUncommitted != id2+1 {
		t.Fatalf("expected oldest uncommitted %d, got %d", id2+1, stats.OldestUncommitted)
	}

	if err := w2.Close(); err != nil {
		t.Fatalf("close wal2: %v", err)
	}

	// Ensure truncation handles partial writes by manually corrupting the log.
	path := filepath.Join(dir, "wal.log")
	if err := appendGarbage(path); err != nil {
		t.Fatalf("append garbage: %v", err)
	}

	w3, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer w3.Close()

	id3, err := w3.Append(metricsEvent(30))
	if err != nil || id3 != id2+1 {
		t.Fatalf("append after garbage: %v id=%d", err, id3)
	}
	count := 0
	if err := w3.Iterate(0, func(ports.WALEntryID, *domain.Event) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("iterate after garbage: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 intact records, got %d", count)
	}
}

func TestFileWALTornRecordIsDropped(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	if _, err := w.Append(metricsEvent(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// full header announcing 100 bytes, followed by only 3
	f, err := openAppend(filepath.Join(dir, "wal.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	hdr := []byte{0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 100, '{', '"', 'x'}
	if _, err := f.Write(hdr); err != nil {
		t.Fatalf("write torn record: %v", err)
	}
	f.Close()

	w2, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	if got := w2.Stats().LatestAppended; got != 1 {
		t.Fatalf("expected torn record to be dropped, latest=%d", got)
	}
	if err := w2.Iterate(0, func(ports.WALEntryID, *domain.Event) error { return nil }); err != nil {
		t.Fatalf("iterate after torn record: %v", err)
	}
}

func TestFileWALTruncateCommitted(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()

	var ids []ports.WALEntryID
	for i := 0; i < 5; i++ {
		id, err := w.Append(metricsEvent(float64(i)))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, id)
	}
	before := w.Stats().SizeBytes

	if err := w.Commit(ids[2]); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.TruncateCommitted(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	after := w.Stats()
	if after.SizeBytes >= before || after.SizeBytes <= 0 {
		t.Fatalf("expected WAL to shrink, before=%d after=%d", before, after.SizeBytes)
	}
	info, err := os.Stat(filepath.Join(dir, "wal.log"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != after.SizeBytes {
		t.Fatalf("size accounting drifted: file=%d stats=%d", info.Size(), after.SizeBytes)
	}

	var remaining []ports.WALEntryID
	if err := w.Iterate(0, func(id ports.WALEntryID, _ *domain.Event) error {
		remaining = append(remaining, id)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(remaining) != 2 || remaining[0] != ids[3] {
		t.Fatalf("expected only uncommitted ids, got %v", remaining)
	}

	next, err := w.Append(metricsEvent(9))
	if err != nil || next != ids[4]+1 {
		t.Fatalf("append after truncate: %v id=%d", err, next)
	}
}

func TestFileWALIDsSurviveFullTruncate(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	id, _ := w.Append(metricsEvent(1))
	if err := w.Commit(id); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.TruncateCommitted(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	w.Close()

	w2, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	next, err := w2.Append(metricsEvent(2))
	if err != nil || next != id+1 {
		t.Fatalf("ids must keep increasing across truncation, got %d after %d", next, id)
	}
}

func appendGarbage(path string) error {
	f, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write([]byte{0xFF, 0xAA}); err != nil {
		return err
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
}

func TestFileWALIterateCallbackMayCommitAndAppend(t *testing.T) {
	w, err := NewFileWAL(t.TempDir())
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		if _, err := w.Append(metricsEvent(float64(i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	done := make(chan error, 1)
	var seen []ports.WALEntryID
	go func() {
		done <- w.Iterate(1, func(id ports.WALEntryID, _ *domain.Event) error {
			seen = append(seen, id)
			if err := w.Commit(id); err != nil {
				return err
			}
			_, err := w.Append(metricsEvent(99))
			return err
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("iterate callback deadlocked on the WAL lock")
	}

	if len(seen) != 3 || seen[2] != 3 {
		t.Fatalf("expected only the 3 entries present at start, got %v", seen)
	}
	if st := w.Stats(); st.OldestUncommitted != 4 || st.LatestAppended != 6 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
