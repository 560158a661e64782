package aegisnet

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	base "github.com/ghalamif/AegisNet/pkg/aegisnet"
)

// Re-exported errors for convenience.
var (
	ErrAlreadyRunning    = base.ErrAlreadyRunning
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrProbeUnavailable  = base.ErrProbeUnavailable
	ErrCaptureFailed     = base.ErrCaptureFailed
	ErrClassifyFailed    = base.ErrClassifyFailed
	ErrPolicyTimeout     = base.ErrPolicyTimeout
	ErrWindowUnavailable = base.ErrWindowUnavailable
)

// Type aliases so consumers can import github.com/ghalamif/AegisNet directly.
type (
	Config           = base.Config
	Thresholds       = base.Thresholds
	Policy           = base.Policy
	SamplerConfig    = base.SamplerConfig
	CycleConfig      = base.CycleConfig
	CaptureConfig    = base.CaptureConfig
	ClassifierConfig = base.ClassifierConfig
	FanoutConfig     = base.FanoutConfig
	MetricsConfig    = base.MetricsConfig
	HistoryConfig    = base.HistoryConfig
	RedisConfig      = base.RedisConfig
	Flow             = base.Flow
	FlowOption       = base.FlowOption
	StreamInOption   = base.StreamInOption
	StreamOutOption  = base.StreamOutOption
	Runtime          = base.Runtime
	Option           = base.Option
	EventHandler     = base.EventHandler
	EventBatchSink   = base.EventBatchSink
	Event            = base.Event
	EventType        = base.EventType
	Sample           = base.Sample
	PingResult       = base.PingResult
	Aggregates       = base.Aggregates
	TuningState      = base.TuningState
	TuningInput      = base.TuningInput
	Histogram        = base.Histogram
	Verdict          = base.Verdict
	Observer         = base.Observer
	Prober           = base.Prober
	CounterReader    = base.CounterReader
	Counters         = base.Counters
	GatewayResolver  = base.GatewayResolver
	WindowRecorder   = base.WindowRecorder
	Capturer         = base.Capturer
	Classifier       = base.Classifier
	TuningPolicy     = base.TuningPolicy
	VerdictPolicy    = base.VerdictPolicy
	Sink             = base.Sink
	EventQueue       = base.EventQueue
	QueuedEvent      = base.QueuedEvent
	Observability    = base.Observability
	Field            = base.Field
	WAL              = base.WAL
	WALStats         = base.WALStats
	WALEntryID       = base.WALEntryID
)

const (
	EventMetrics         = base.EventMetrics
	EventAttackDetection = base.EventAttackDetection
	EventTuning          = base.EventTuning
	EventError           = base.EventError
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...Option) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInProber(p Prober) StreamInOption {
	return base.StreamInProber(p)
}

func StreamInCounters(c CounterReader) StreamInOption {
	return base.StreamInCounters(c)
}

func StreamInCapturer(c Capturer) StreamInOption {
	return base.StreamInCapturer(c)
}

func StreamInClassifier(c Classifier) StreamInOption {
	return base.StreamInClassifier(c)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn EventBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

func StreamOutEvents(fn EventHandler) StreamOutOption {
	return base.StreamOutEvents(fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithProber(p Prober) Option {
	return base.WithProber(p)
}

func WithCounterReader(c CounterReader) Option {
	return base.WithCounterReader(c)
}

func WithGatewayResolver(g GatewayResolver) Option {
	return base.WithGatewayResolver(g)
}

func WithWindowRecorder(r WindowRecorder) Option {
	return base.WithWindowRecorder(r)
}

func WithCapturer(c Capturer) Option {
	return base.WithCapturer(c)
}

func WithClassifier(c Classifier) Option {
	return base.WithClassifier(c)
}

func WithTuningPolicy(p TuningPolicy) Option {
	return base.WithTuningPolicy(p)
}

func WithVerdictPolicy(p VerdictPolicy) Option {
	return base.WithVerdictPolicy(p)
}

func WithSink(s Sink) Option {
	return base.WithSink(s)
}

func WithWAL(w WAL) Option {
	return base.WithWAL(w)
}

func WithEventQueue(q EventQueue) Option {
	return base.WithEventQueue(q)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithRegistry(reg *prometheus.Registry) Option {
	return base.WithRegistry(reg)
}

func WithLogger(l *slog.Logger) Option {
	return base.WithLogger(l)
}

func WithConfigWatch(path string) Option {
	return base.WithConfigWatch(path)
}

func WithEventHandler(fn EventHandler) Option {
	return base.WithEventHandler(fn)
}

// Sink adapters.
func NewCallbackSink(name string, fn EventBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Event, func()) {
	return base.NewChannelSink(name, buffer)
}
