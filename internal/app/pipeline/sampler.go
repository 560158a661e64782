package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

type SamplerConfig struct {
	Period       time.Duration
	ExternalHost string
	Gateway      string
	ProbeTimeout time.Duration
	WindowSize   int
}

// Sampler produces one Sample per tick and is the only goroutine touching the
// Window. Other tasks go through Snapshot and Reset.
type Sampler struct {
	cfg      SamplerConfig
	prober   ports.Prober
	counters ports.CounterReader
	recorder ports.WindowRecorder
	pub      ports.Publisher
	obs      ports.Observability

	snapReq  chan chan domain.Snapshot
	resetReq chan chan struct{}
	done     chan struct{}

	// touched only by the single in-flight measurement
	last     ports.Counters
	haveLast bool

	ticker func(time.Duration) (<-chan time.Time, func())
}

// NewSampler wires a sampler. counters and recorder may be nil.
func NewSampler(cfg SamplerConfig, prober ports.Prober, counters ports.CounterReader, recorder ports.WindowRecorder, pub ports.Publisher, obs ports.Observability) *Sampler {
	if cfg.Period <= 0 {
		cfg.Period = 2 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = domain.DefaultWindowSize
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Sampler{
		cfg:      cfg,
		prober:   prober,
		counters: counters,
		recorder: recorder,
		pub:      pub,
		obs:      obs,
		snapReq:  make(chan chan domain.Snapshot),
		resetReq: make(chan chan struct{}),
		done:     make(chan struct{}),
		ticker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Run ticks until ctx is cancelled. A tick arriving while the previous
// measurement is still running is skipped.
func (s *Sampler) Run(ctx context.Context) error {
	defer close(s.done)

	window := domain.NewWindow(s.cfg.WindowSize)
	ticks, stop := s.ticker(s.cfg.Period)
	defer stop()

	results := make(chan domain.Sample, 1)
	inFlight := false

	s.obs.LogInfo("sampler_started",
		ports.Field{Key: "period", Value: s.cfg.Period.String()},
		ports.Field{Key: "external_host", Value: s.cfg.ExternalHost},
		ports.Field{Key: "gateway", Value: s.cfg.Gateway},
	)

	for {
		select {
		case <-ctx.Done():
			s.obs.LogInfo("sampler_stopped")
			return nil

		case <-ticks:
			if inFlight {
				s.obs.IncCounter("aegis_sampler_ticks_skipped_total", 1)
				continue
			}
			inFlight = true
			go func() {
				sample := s.measure(ctx)
				select {
				case results <- sample:
				case <-ctx.Done():
				}
			}()

		case sample := <-results:
			inFlight = false
			s.ingest(window, sample)

		case reply := <-s.snapReq:
			reply <- window.Snapshot()

		case reply := <-s.resetReq:
			window.Reset()
			close(reply)
		}
	}
}

func (s *Sampler) ingest(window *domain.Window, sample domain.Sample) {
	window.Append(sample)
	s.obs.IncCounter("aegis_samples_total", 1)

	if s.recorder != nil {
		if err := s.recorder.Record(window.Samples()); err != nil {
			s.obs.LogWarn("snapshot_write_failed", ports.Field{Key: "error", Value: err.Error()})
		}
	}

	var aggPtr *domain.Aggregates
	if agg, ok := window.Aggregates(); ok {
		aggPtr = &agg
		s.obs.SetGauge("aegis_window_avg_latency_ms", agg.AvgLatency)
		s.obs.SetGauge("aegis_window_avg_loss_percent", agg.AvgLoss)
	}
	if s.pub != nil && !s.pub.Publish(domain.NewMetricsEvent(sample, aggPtr)) {
		s.obs.IncCounter("aegis_fanout_dropped_total", 1)
	}
}

func (s *Sampler) measure(ctx context.Context) domain.Sample {
	now := time.Now()
	sample := domain.Sample{Timestamp: now}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sample.ExternalPing = s.probe(ctx, s.cfg.ExternalHost)
	}()
	go func() {
		defer wg.Done()
		sample.LocalPing = s.probe(ctx, s.cfg.Gateway)
	}()

	s.fillCounters(&sample, now)
	wg.Wait()
	return sample
}

func (s *Sampler) probe(ctx context.Context, host string) domain.PingResult {
	if s.prober == nil || host == "" {
		return domain.PingResult{}
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	res, err := s.prober.Probe(pctx, host)
	if err != nil {
		s.obs.IncCounter("aegis_probe_failures_total", 1)
		s.obs.LogDebug("probe_unavailable",
			ports.Field{Key: "host", Value: host},
			ports.Field{Key: "error", Value: err.Error()},
		)
		return domain.PingResult{}
	}
	return res
}

func (s *Sampler) fillCounters(sample *domain.Sample, now time.Time) {
	if s.counters == nil {
		return
	}
	cur, err := s.counters.ReadCounters()
	if err != nil {
		s.obs.LogWarn("counters_unavailable", ports.Field{Key: "error", Value: err.Error()})
		return
	}
	if cur.At.IsZero() {
		cur.At = now
	}
	if s.haveLast {
		sample.BytesSent = counterDelta(s.last.BytesSent, cur.BytesSent)
		sample.BytesRecv = counterDelta(s.last.BytesRecv, cur.BytesRecv)
		if elapsed := cur.At.Sub(s.last.At).Seconds(); elapsed > 0 {
			sample.ThroughputSent = float64(sample.BytesSent) / elapsed
			sample.ThroughputRecv = float64(sample.BytesRecv) / elapsed
		}
	}
	s.last = cur
	s.haveLast = true
}

// counterDelta treats a counter that went backwards (interface reset) as zero traffic.
func counterDelta(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// Snapshot returns an immutable copy of the current window.
func (s *Sampler) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	reply := make(chan domain.Snapshot, 1)
	select {
	case s.snapReq <- reply:
	case <-s.done:
		return domain.Snapshot{}, domain.ErrWindowUnavailable
	case <-ctx.Done():
		return domain.Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return domain.Snapshot{}, ctx.Err()
	}
}

// Reset clears the window.
func (s *Sampler) Reset(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case s.resetReq <- reply:
	case <-s.done:
		return domain.ErrWindowUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
