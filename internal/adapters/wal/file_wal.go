package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

const recordHeaderLen = 12

var (
	errClosed        = errors.New("wal closed")
	errStopIteration = errors.New("wal iteration stopped")
)

// FileWAL journals telemetry events for the history pipeline. Records are
// [8 bytes id][4 bytes len][len bytes json]; the committed watermark lives in
// a sidecar meta file.
type FileWAL struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
}

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 64<<10)

	wal := &FileWAL{
		path:     path,
		metaPath: filepath.Join(dir, "wal.meta"),
		file:     f,
		writer:   w,
	}
	if err := wal.bootstrap(); err != nil {
		f.Close()
		return nil, err
	}
	return wal, nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

func (w *FileWAL) scanExisting() error {
	stat, err := os.Stat(w.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil || stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.WALEntryID
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("wal scan header: %w", err)
		}
		id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		if length > 0 {
			if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					// torn record: drop it including its header
					break
				}
				return fmt.Errorf("wal scan body: %w", err)
			}
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func (w *FileWAL) Append(ev *domain.Event) (ports.WALEntryID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, errClosed
	}
	id := w.nextID + 1

	b, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}

	n, err := writeRecord(w.writer, id, b)
	if err != nil {
		return 0, err
	}
	// events arrive at sampler cadence, so every record is flushed
	if err := w.writer.Flush(); err != nil {
		return 0, err
	}

	w.nextID = id
	w.sizeBytes += int64(n)

	return id, nil
}

func writeRecord(wr io.Writer, id ports.WALEntryID, payload []byte) (int, error) {
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(payload)))

	if _, err := wr.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := wr.Write(payload); err != nil {
		return 0, err
	}
	return len(hdr) + len(payload), nil
}

// Iterate reads the records present when it starts. fn runs without the WAL
// lock held, so it may block on a consumer that appends or commits.
func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, ev *domain.Event) error) error {
	w.mu.Lock()
	if w.file == nil {
		w.mu.Unlock()
		return errClosed
	}
	if err := w.writer.Flush(); err != nil {
		w.mu.Unlock()
		return err
	}
	f, err := os.Open(w.path)
	last := w.nextID
	w.mu.Unlock()
	if err != nil {
		return err
	}
	defer f.Close()

	err = scanRecords(f, func(id ports.WALEntryID, b []byte) error {
		if id > last {
			return errStopIteration
		}
		if id < from {
			return nil
		}
		var ev domain.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return fmt.Errorf("corrupt WAL entry %d: %w", id, err)
		}
		return fn(id, &ev)
	})
	if errors.Is(err, errStopIteration) {
		return nil
	}
	return err
}

func readRecords(path string, fn func(id ports.WALEntryID, payload []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return scanRecords(f, fn)
}

func scanRecords(f io.Reader, fn func(id ports.WALEntryID, payload []byte) error) error {
	r := bufio.NewReader(f)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("wal iterate truncated header: %w", err)
			}
			return err
		}
		id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		l := binary.BigEndian.Uint32(hdr[8:12])

		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt WAL: %w", err)
		}
		if err := fn(id, b); err != nil {
			return err
		}
	}
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto > w.committed {
		w.committed = upto
	}
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log keeping only uncommitted records.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return errClosed
	}
	if w.committed == 0 {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}

	tmpPath := w.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(tmp)
	var kept int64
	err = readRecords(w.path, func(id ports.WALEntryID, payload []byte) error {
		if id <= w.committed {
			return nil
		}
		n, err := writeRecord(bw, id, payload)
		kept += int64(n)
		return err
	})
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("wal truncate: %w", err)
	}

	_ = w.file.Close()
	renameErr := os.Rename(tmpPath, w.path)
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		w.file = nil
		return errors.Join(renameErr, err)
	}
	w.file = f
	w.writer.Reset(f)
	if renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("wal truncate rename: %w", renameErr)
	}
	w.sizeBytes = kept
	return nil
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	ferr := w.writer.Flush()
	cerr := w.file.Close()
	w.file = nil
	return errors.Join(ferr, cerr)
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	return os.WriteFile(w.metaPath, data, 0o644)
}

var _ ports.WAL = (*FileWAL)(nil)
