package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// FileRecorder rewrites a JSON array of the most recent samples on every
// call. Readers never observe a partial file: the array goes to a temp file
// in the same directory which then replaces the target.
type FileRecorder struct {
	mu   sync.Mutex
	path string
	max  int
}

func NewFileRecorder(path string, max int) (*FileRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot: empty path")
	}
	if max <= 0 {
		max = domain.DefaultWindowSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &FileRecorder{path: path, max: max}, nil
}

func (r *FileRecorder) Path() string { return r.path }

func (r *FileRecorder) Record(samples []domain.Sample) error {
	if len(samples) > r.max {
		samples = samples[len(samples)-r.max:]
	}
	if samples == nil {
		samples = []domain.Sample{}
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: replace: %w", err)
	}
	return nil
}

// Load reads back a snapshot file, mainly for tooling.
func Load(path string) ([]domain.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []domain.Sample
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	return out, nil
}

var _ ports.WindowRecorder = (*FileRecorder)(nil)
