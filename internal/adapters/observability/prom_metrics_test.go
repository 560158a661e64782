package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	obs := NewPromObs(nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	obs.IncCounter("aegis_history_ingested_total", 5)
	if got := testutil.ToFloat64(obs.counters["aegis_history_ingested_total"]); got != 5 {
		t.Fatalf("expected ingested counter 5, got %f", got)
	}

	obs.IncCounter("aegis_cycles_skipped_total", 2)
	if got := testutil.ToFloat64(obs.counters["aegis_cycles_skipped_total"]); got != 2 {
		t.Fatalf("expected skipped counter 2, got %f", got)
	}

	obs.SetGauge("aegis_cycle_interval_seconds", 16)
	if got := testutil.ToFloat64(obs.gauges["aegis_cycle_interval_seconds"]); got != 16 {
		t.Fatalf("expected interval gauge 16, got %f", got)
	}

	obs.ObserveLatency("aegis_history_sink_latency_seconds", 0.5)
	hCollector := obs.histos["aegis_history_sink_latency_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.RecordDLQ(1, nil, nil)
	if got := testutil.ToFloat64(obs.counters["aegis_dlq_total"]); got != 1 {
		t.Fatalf("expected dlq counter 1, got %f", got)
	}

	// unknown names are ignored
	obs.IncCounter("does_not_exist", 1)

	if n, err := testutil.GatherAndCount(reg, "aegis_attacks_detected_total"); err != nil || n != 1 {
		t.Fatalf("expected attack counter registered on default registry, n=%d err=%v", n, err)
	}
}

func TestPromObsLogsThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewPromObs(prometheus.NewRegistry(), logger)

	obs.LogDebug("quiet")
	obs.LogError("capture_failed", errors.New("exit status 1"), ports.Field{Key: "cycle_id", Value: "c-1"})
	obs.RecordDLQ(7, &domain.Event{ID: "e-1", Type: domain.EventMetrics}, errors.New("invalid"))

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("debug line must be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"capture_failed"`) || !strings.Contains(out, `"cycle_id":"c-1"`) || !strings.Contains(out, `"error":"exit status 1"`) {
		t.Fatalf("unexpected error line: %s", out)
	}
	if !strings.Contains(out, `"event_id":"e-1"`) {
		t.Fatalf("expected DLQ line with event id: %s", out)
	}
}
