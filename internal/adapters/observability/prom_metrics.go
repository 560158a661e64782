package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/AegisNet/internal/app/logging"
	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

var counterHelp = map[string]string{
	"aegis_samples_total":               "Samples appended to the metrics window.",
	"aegis_sampler_ticks_skipped_total": "Sampler ticks skipped because the previous measurement was still running.",
	"aegis_probe_failures_total":        "Ping probes that produced no values.",
	"aegis_cycles_started_total":        "Feedback cycles whose anomaly gate fired.",
	"aegis_cycles_skipped_total":        "Feedback cycles skipped by the anomaly gate.",
	"aegis_captures_failed_total":       "Traffic captures that failed.",
	"aegis_classify_failed_total":       "Classifier invocations that failed.",
	"aegis_policy_timeouts_total":       "Tuning or verdict policy calls that timed out or failed.",
	"aegis_attacks_detected_total":      "Cycles that ended with an attack verdict.",
	"aegis_fanout_dropped_total":        "Telemetry events dropped by the fan-out hub.",
	"aegis_history_ingested_total":      "Events written to every history sink.",
	"aegis_history_queue_dropped_total": "Events lost due to history queue backpressure policies.",
	"aegis_dlq_total":                   "Events rejected by the history pipeline.",
}

var gaugeHelp = map[string]string{
	"aegis_capture_duration_seconds": "Committed capture duration.",
	"aegis_cycle_interval_seconds":   "Committed cycle interval.",
	"aegis_window_avg_latency_ms":    "Average external latency over the window.",
	"aegis_window_avg_loss_percent":  "Average external packet loss over the window.",
	"aegis_fanout_observers":         "Currently connected telemetry observers.",
	"aegis_history_queue_length":     "Events buffered in the history queue.",
	"aegis_wal_size_bytes":           "Size of the history WAL on disk.",
}

var histoOpts = map[string]prometheus.HistogramOpts{
	"aegis_capture_classify_seconds": {
		Help:    "Duration of capture plus classification per cycle.",
		Buckets: prometheus.LinearBuckets(10, 10, 12),
	},
	"aegis_history_sink_latency_seconds": {
		Help:    "Latency from dequeued batch to sink commit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	},
}

// NewPromObs registers every metric on reg (the default registerer when nil)
// and logs through logger (slog.Default when nil).
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &PromObs{
		logger:   logger,
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		gauges:   make(map[string]prometheus.Gauge, len(gaugeHelp)),
		histos:   make(map[string]prometheus.Observer, len(histoOpts)),
	}

	var cs []prometheus.Collector
	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		p.counters[name] = c
		cs = append(cs, c)
	}
	for name, help := range gaugeHelp {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		p.gauges[name] = g
		cs = append(cs, g)
	}
	for name, opts := range histoOpts {
		opts.Name = name
		h := prometheus.NewHistogram(opts)
		p.histos[name] = h
		cs = append(cs, h)
	}

	reg.MustRegister(cs...)
	return p
}

func (p *PromObs) log(level slog.Level, msg string, err error, fields []ports.Field) {
	if !p.logger.Enabled(context.Background(), level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields)+1)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	p.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.log(slog.LevelDebug, msg, nil, fields)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log(slog.LevelInfo, msg, nil, fields)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log(slog.LevelWarn, msg, nil, fields)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log(slog.LevelError, msg, err, fields)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log(logging.LevelCritical, msg, err, fields)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, ev *domain.Event, err error) {
	p.IncCounter("aegis_dlq_total", 1)
	fields := []ports.Field{{Key: "wal_id", Value: uint64(id)}}
	if ev != nil {
		fields = append(fields, ports.Field{Key: "event_id", Value: ev.ID}, ports.Field{Key: "type", Value: string(ev.Type)})
	}
	p.log(slog.LevelWarn, "history_dlq", err, fields)
}

var _ ports.Observability = (*PromObs)(nil)
