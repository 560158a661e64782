package aegisnet

import (
	"github.com/ghalamif/AegisNet/internal/adapters/fanout"
	"github.com/ghalamif/AegisNet/internal/app/pipeline"
	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// Event is the envelope published to live observers and history sinks.
type Event = domain.Event

// EventType names the kinds of events (metrics, attack_detection, tuning, error).
type EventType = domain.EventType

const (
	EventMetrics         = domain.EventMetrics
	EventAttackDetection = domain.EventAttackDetection
	EventTuning          = domain.EventTuning
	EventError           = domain.EventError
)

// Pipeline failure sentinels; test with errors.Is.
var (
	ErrProbeUnavailable  = domain.ErrProbeUnavailable
	ErrCaptureFailed     = domain.ErrCaptureFailed
	ErrClassifyFailed    = domain.ErrClassifyFailed
	ErrPolicyTimeout     = domain.ErrPolicyTimeout
	ErrWindowUnavailable = domain.ErrWindowUnavailable
)

// Sample is one periodic network measurement.
type Sample = domain.Sample

// PingResult is a single probe outcome; nil fields mean "no value".
type PingResult = domain.PingResult

// Aggregates summarise the external probe over the window.
type Aggregates = domain.Aggregates

// TuningState is the capture duration and cycle interval in force.
type TuningState = domain.TuningState

// TuningInput is what a tuning policy decides on.
type TuningInput = domain.TuningInput

// Histogram maps traffic labels to packet counts.
type Histogram = domain.Histogram

// Verdict is the outcome of one capture/classify cycle.
type Verdict = domain.Verdict

// CycleResult describes one finished feedback cycle.
type CycleResult = pipeline.CycleResult

// Observer is a live telemetry subscription.
type Observer = fanout.Observer

// Prober measures latency and loss towards a host.
type Prober = ports.Prober

// CounterReader reads cumulative interface byte counters.
type CounterReader = ports.CounterReader

// Counters is one cumulative counter reading.
type Counters = ports.Counters

// GatewayResolver finds the local default gateway.
type GatewayResolver = ports.GatewayResolver

// WindowRecorder persists the most recent samples after each tick.
type WindowRecorder = ports.WindowRecorder

// Capturer records raw traffic for a duration.
type Capturer = ports.Capturer

// Classifier turns a capture artifact into a Histogram.
type Classifier = ports.Classifier

// TuningPolicy proposes the next TuningState.
type TuningPolicy = ports.TuningPolicy

// VerdictPolicy decides whether a Histogram is an attack.
type VerdictPolicy = ports.VerdictPolicy

// Sink persists batches of events from the history pipeline.
type Sink = ports.Sink

// EventQueue is the bounded queue between the history WAL and its sinks.
type EventQueue = ports.EventQueue

// QueuedEvent is an item buffered inside the EventQueue.
type QueuedEvent = ports.QueuedEvent

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the write-ahead log used by the history pipeline.
type WAL = ports.WAL

// WALStats exposes WAL metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a WAL entry.
type WALEntryID = ports.WALEntryID
