package ports

import "time"

// Policy controls WAL/queue thresholds of the history pipeline.
type Policy struct {
	MaxWALSizeBytes int64         `yaml:"max_wal_size_bytes"`
	MaxQueueLen     int           `yaml:"max_queue_len"`
	MaxBatchSize    int           `yaml:"max_batch_size"`
	IdleSleep       time.Duration `yaml:"idle_sleep"`

	OnWALFull   string `yaml:"on_wal_full"`   // "drop", "block"
	OnQueueFull string `yaml:"on_queue_full"` // "reject", "block", "drop"
}
