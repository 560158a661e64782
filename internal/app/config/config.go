package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/AegisNet/internal/app/policy"
	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

type Config struct {
	Interface  string            `yaml:"interface"`
	Log        LogConfig         `yaml:"log"`
	Sampler    SamplerConfig     `yaml:"sampler"`
	Anomaly    policy.Thresholds `yaml:"anomaly"`
	Cycle      CycleConfig       `yaml:"cycle"`
	Capture    CaptureConfig     `yaml:"capture"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Fanout     FanoutConfig      `yaml:"fanout"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	History    HistoryConfig     `yaml:"history"`
	Redis      RedisConfig       `yaml:"redis"`
}

type LogConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"` // "json", "text"
	Output        string `yaml:"output"` // "stdout", "stderr" or a file path
	IncludeSource bool   `yaml:"include_source"`
}

type SamplerConfig struct {
	Period          time.Duration `yaml:"period"`
	ExternalHost    string        `yaml:"external_host"`
	Gateway         string        `yaml:"gateway"`
	FallbackGateway string        `yaml:"fallback_gateway"`
	PingCount       int           `yaml:"ping_count"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	Privileged      bool          `yaml:"privileged"`
	WindowSize      int           `yaml:"window_size"`
	SnapshotPath    string        `yaml:"snapshot_path"`
}

type CycleConfig struct {
	InitialCaptureDuration time.Duration `yaml:"initial_capture_duration"`
	InitialCycleInterval   time.Duration `yaml:"initial_cycle_interval"`
	TuningTimeout          time.Duration `yaml:"tuning_timeout"`
	Step                   float64       `yaml:"step"`
	VerdictRatio           float64       `yaml:"verdict_ratio"`
	VerdictTimeout         time.Duration `yaml:"verdict_timeout"`
}

type CaptureConfig struct {
	Tool       string        `yaml:"tool"`
	OutputPath string        `yaml:"output_path"`
	Overhead   time.Duration `yaml:"overhead"`
}

type ClassifierConfig struct {
	Mode    string        `yaml:"mode"` // "http", "command"
	URL     string        `yaml:"url"`
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

type FanoutConfig struct {
	Addr           string        `yaml:"addr"`
	InboxSize      int           `yaml:"inbox_size"`
	ObserverBuffer int           `yaml:"observer_buffer"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type HistoryConfig struct {
	Enabled bool         `yaml:"enabled"`
	Driver  string       `yaml:"driver"` // "postgres", "sqlite3"
	DSN     string       `yaml:"dsn"`
	Table   string       `yaml:"table"`
	WALDir  string       `yaml:"wal_dir"`
	Policy  ports.Policy `yaml:"policy"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
	Channel     string `yaml:"channel"`
	RecentLimit int64  `yaml:"recent_limit"`
}

// Enabled reports whether a Redis sink is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes raw YAML, applies defaults and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Sampler.Period == 0 {
		c.Sampler.Period = 2 * time.Second
	}
	if c.Sampler.ExternalHost == "" {
		c.Sampler.ExternalHost = "8.8.8.8"
	}
	if c.Sampler.FallbackGateway == "" {
		c.Sampler.FallbackGateway = "192.168.1.1"
	}
	if c.Sampler.PingCount == 0 {
		c.Sampler.PingCount = 4
	}
	if c.Sampler.ProbeTimeout == 0 {
		c.Sampler.ProbeTimeout = 2 * time.Second
	}
	if c.Sampler.WindowSize == 0 {
		c.Sampler.WindowSize = domain.DefaultWindowSize
	}
	if c.Sampler.SnapshotPath == "" {
		c.Sampler.SnapshotPath = "./data/last15.json"
	}

	def := policy.DefaultThresholds()
	if c.Anomaly.AvgLatency == 0 {
		c.Anomaly.AvgLatency = def.AvgLatency
	}
	if c.Anomaly.MaxLatency == 0 {
		c.Anomaly.MaxLatency = def.MaxLatency
	}
	if c.Anomaly.AvgLoss == 0 {
		c.Anomaly.AvgLoss = def.AvgLoss
	}
	if c.Anomaly.MaxLoss == 0 {
		c.Anomaly.MaxLoss = def.MaxLoss
	}

	if c.Cycle.InitialCaptureDuration == 0 {
		c.Cycle.InitialCaptureDuration = domain.MinCaptureDuration
	}
	if c.Cycle.InitialCycleInterval == 0 {
		c.Cycle.InitialCycleInterval = domain.MinCycleInterval
	}
	if c.Cycle.TuningTimeout == 0 {
		c.Cycle.TuningTimeout = 5 * time.Second
	}
	if c.Cycle.Step == 0 {
		c.Cycle.Step = policy.DefaultStep
	}
	if c.Cycle.VerdictRatio == 0 {
		c.Cycle.VerdictRatio = policy.DefaultVerdictRatio
	}
	if c.Cycle.VerdictTimeout == 0 {
		c.Cycle.VerdictTimeout = 5 * time.Second
	}

	if c.Capture.Tool == "" {
		c.Capture.Tool = "tshark"
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = "./data/capture/capture.pcap"
	}
	if c.Capture.Overhead == 0 {
		c.Capture.Overhead = 10 * time.Second
	}

	if c.Classifier.Mode == "" {
		c.Classifier.Mode = "http"
	}
	if c.Classifier.URL == "" && c.Classifier.Mode == "http" {
		c.Classifier.URL = "http://127.0.0.1:5000/classify"
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 60 * time.Second
	}

	if c.Fanout.Addr == "" {
		c.Fanout.Addr = ":8000"
	}
	if c.Fanout.InboxSize == 0 {
		c.Fanout.InboxSize = 256
	}
	if c.Fanout.ObserverBuffer == 0 {
		c.Fanout.ObserverBuffer = 64
	}
	if c.Fanout.WriteTimeout == 0 {
		c.Fanout.WriteTimeout = 5 * time.Second
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}

	if c.History.Table == "" {
		c.History.Table = "events"
	}
	if c.History.WALDir == "" {
		c.History.WALDir = "./data/wal"
	}
	if c.History.Policy.MaxWALSizeBytes == 0 {
		c.History.Policy.MaxWALSizeBytes = 1 << 30
	}
	if c.History.Policy.MaxQueueLen == 0 {
		c.History.Policy.MaxQueueLen = 10_000
	}
	if c.History.Policy.MaxBatchSize == 0 {
		c.History.Policy.MaxBatchSize = 500
	}
	if c.History.Policy.IdleSleep == 0 {
		c.History.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.History.Policy.OnQueueFull == "" {
		c.History.Policy.OnQueueFull = "drop"
	}
	if c.History.Policy.OnWALFull == "" {
		c.History.Policy.OnWALFull = "drop"
	}

	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "aegisnet"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "aegisnet:events"
	}
	if c.Redis.RecentLimit == 0 {
		c.Redis.RecentLimit = 1000
	}
}

func (c *Config) validate() error {
	var errs []error

	if c.Sampler.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("sampler.window_size must be >= 1"))
	}
	if c.Sampler.Period <= 0 {
		errs = append(errs, fmt.Errorf("sampler.period must be positive"))
	}
	if c.Sampler.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sampler.probe_timeout must be positive"))
	}
	if c.Sampler.PingCount < 1 {
		errs = append(errs, fmt.Errorf("sampler.ping_count must be >= 1"))
	}

	if c.Cycle.Step <= 0 || c.Cycle.Step > 1 {
		errs = append(errs, fmt.Errorf("cycle.step must be in (0,1], got %v", c.Cycle.Step))
	}
	if c.Cycle.VerdictRatio <= 0 || c.Cycle.VerdictRatio > 1 {
		errs = append(errs, fmt.Errorf("cycle.verdict_ratio must be in (0,1], got %v", c.Cycle.VerdictRatio))
	}
	if d := c.Cycle.InitialCaptureDuration; d < domain.MinCaptureDuration || d > domain.MaxCaptureDuration {
		errs = append(errs, fmt.Errorf("cycle.initial_capture_duration %s outside [%s,%s]", d, domain.MinCaptureDuration, domain.MaxCaptureDuration))
	}
	if i := c.Cycle.InitialCycleInterval; i < domain.MinCycleInterval || i > domain.MaxCycleInterval {
		errs = append(errs, fmt.Errorf("cycle.initial_cycle_interval %s outside [%s,%s]", i, domain.MinCycleInterval, domain.MaxCycleInterval))
	}
	if c.Cycle.TuningTimeout <= 0 || c.Cycle.VerdictTimeout <= 0 {
		errs = append(errs, fmt.Errorf("cycle timeouts must be positive"))
	}
	if c.Capture.Overhead < 0 {
		errs = append(errs, fmt.Errorf("capture.overhead must not be negative"))
	}

	switch c.Classifier.Mode {
	case "http":
		if c.Classifier.URL == "" {
			errs = append(errs, fmt.Errorf("classifier.url is required in http mode"))
		}
	case "command":
		if len(c.Classifier.Command) == 0 {
			errs = append(errs, fmt.Errorf("classifier.command is required in command mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("classifier.mode %q is not supported", c.Classifier.Mode))
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("classifier.timeout must be positive"))
	}

	if c.Fanout.Addr == "" {
		errs = append(errs, fmt.Errorf("fanout.addr is required"))
	}
	if c.Fanout.InboxSize < 1 || c.Fanout.ObserverBuffer < 1 {
		errs = append(errs, fmt.Errorf("fanout buffers must be >= 1"))
	}

	if c.History.Enabled {
		switch c.History.Driver {
		case "postgres", "sqlite3":
		case "":
			errs = append(errs, fmt.Errorf("history.driver is required when history is enabled"))
		default:
			errs = append(errs, fmt.Errorf("history.driver %q is not supported", c.History.Driver))
		}
		if c.History.DSN == "" {
			errs = append(errs, fmt.Errorf("history.dsn is required when history is enabled"))
		}
		if c.History.WALDir == "" {
			errs = append(errs, fmt.Errorf("history.wal_dir is required"))
		}
	}
	for _, p := range []struct{ name, val string }{
		{"history.policy.on_queue_full", c.History.Policy.OnQueueFull},
		{"history.policy.on_wal_full", c.History.Policy.OnWALFull},
	} {
		switch p.val {
		case "block", "drop", "reject":
		default:
			errs = append(errs, fmt.Errorf("%s %q is not supported", p.name, p.val))
		}
	}

	return errors.Join(errs...)
}
