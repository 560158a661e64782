package aegisnet

import (
	"github.com/ghalamif/AegisNet/internal/app/config"
	"github.com/ghalamif/AegisNet/internal/app/policy"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Thresholds are the anomaly gate limits.
	Thresholds = policy.Thresholds
	// Policy controls history WAL/queue thresholds.
	Policy = ports.Policy
	// SamplerConfig configures probing and the metrics window.
	SamplerConfig = config.SamplerConfig
	// CycleConfig configures the feedback cycle.
	CycleConfig = config.CycleConfig
	// CaptureConfig configures the traffic capture tool.
	CaptureConfig = config.CaptureConfig
	// ClassifierConfig selects the packet classifier.
	ClassifierConfig = config.ClassifierConfig
	// FanoutConfig configures the live telemetry endpoint.
	FanoutConfig = config.FanoutConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// HistoryConfig configures the SQL event history.
	HistoryConfig = config.HistoryConfig
	// RedisConfig configures the Redis mirror.
	RedisConfig = config.RedisConfig
)

// LoadConfig loads YAML from disk, applies defaults and validates.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig is LoadConfig for in-memory YAML.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
