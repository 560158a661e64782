package aegisnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/AegisNet/internal/adapters/capture"
	"github.com/ghalamif/AegisNet/internal/adapters/classify"
	"github.com/ghalamif/AegisNet/internal/adapters/fanout"
	"github.com/ghalamif/AegisNet/internal/adapters/netstat"
	"github.com/ghalamif/AegisNet/internal/adapters/observability"
	"github.com/ghalamif/AegisNet/internal/adapters/probe"
	"github.com/ghalamif/AegisNet/internal/adapters/queue"
	"github.com/ghalamif/AegisNet/internal/adapters/snapshot"
	"github.com/ghalamif/AegisNet/internal/adapters/transport"
	"github.com/ghalamif/AegisNet/internal/adapters/wal"
	"github.com/ghalamif/AegisNet/internal/app/config"
	"github.com/ghalamif/AegisNet/internal/app/logging"
	"github.com/ghalamif/AegisNet/internal/app/pipeline"
	"github.com/ghalamif/AegisNet/internal/app/policy"
	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// ErrAlreadyRunning is returned by a second call to Runtime.Run.
var ErrAlreadyRunning = errors.New("aegisnet: runtime already running")

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

// EventHandler receives every live event. It runs on its own goroutine and
// must not block for long: a slow handler loses the oldest buffered events.
type EventHandler func(*Event)

type overrides struct {
	prober     Prober
	counters   CounterReader
	gateway    GatewayResolver
	recorder   WindowRecorder
	capturer   Capturer
	classifier Classifier
	tuning     TuningPolicy
	verdict    VerdictPolicy
	sinks      []Sink
	wal        WAL
	queue      EventQueue
	obs        Observability
	registry   *prometheus.Registry
	logger     *slog.Logger
	configPath string
	handlers   []EventHandler
}

// WithProber replaces the ICMP prober (simulators, TCP probes, tests).
func WithProber(p Prober) Option {
	return func(o *overrides) { o.prober = p }
}

// WithCounterReader replaces the netlink interface counters.
func WithCounterReader(c CounterReader) Option {
	return func(o *overrides) { o.counters = c }
}

// WithGatewayResolver replaces the routing table lookup of the local gateway.
func WithGatewayResolver(g GatewayResolver) Option {
	return func(o *overrides) { o.gateway = g }
}

// WithWindowRecorder replaces the JSON snapshot file writer.
func WithWindowRecorder(r WindowRecorder) Option {
	return func(o *overrides) { o.recorder = r }
}

// WithCapturer replaces the tshark capture.
func WithCapturer(c Capturer) Option {
	return func(o *overrides) { o.capturer = c }
}

// WithClassifier replaces the configured classifier.
func WithClassifier(c Classifier) Option {
	return func(o *overrides) { o.classifier = c }
}

// WithTuningPolicy replaces the threshold tuning policy, e.g. with a learned one.
func WithTuningPolicy(p TuningPolicy) Option {
	return func(o *overrides) { o.tuning = p }
}

// WithVerdictPolicy replaces the ratio verdict policy.
func WithVerdictPolicy(p VerdictPolicy) Option {
	return func(o *overrides) { o.verdict = p }
}

// WithSink adds a history sink. Any sink enables the history pipeline.
func WithSink(s Sink) Option {
	return func(o *overrides) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithWAL lets callers bring their own WAL implementation.
func WithWAL(w WAL) Option {
	return func(o *overrides) { o.wal = w }
}

// WithEventQueue injects a custom history queue implementation.
func WithEventQueue(q EventQueue) Option {
	return func(o *overrides) { o.queue = q }
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// WithRegistry serves metrics from reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *overrides) { o.registry = reg }
}

// WithLogger replaces the logger built from the log section of the config.
func WithLogger(l *slog.Logger) Option {
	return func(o *overrides) { o.logger = l }
}

// WithConfigWatch reloads thresholds and log level when path changes.
func WithConfigWatch(path string) Option {
	return func(o *overrides) { o.configPath = path }
}

// WithEventHandler registers a callback observer on the live feed.
func WithEventHandler(fn EventHandler) Option {
	return func(o *overrides) {
		if fn != nil {
			o.handlers = append(o.handlers, fn)
		}
	}
}

// Runtime wires sampler, coordinator, fan-out hub, HTTP endpoints and the
// optional history pipeline, and runs them under a single errgroup.
type Runtime struct {
	cfg      *Config
	logger   *logging.Logger
	closeLog func() error
	obs      ports.Observability
	registry *prometheus.Registry

	hub         *fanout.Hub
	sampler     *pipeline.Sampler
	gate        *policy.Gate
	stage       *pipeline.CaptureClassifyStage
	coordinator *pipeline.Coordinator

	history historyDeps

	configPath string
	handlers   []EventHandler

	running      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewRuntime builds the default adapters (ICMP prober, netlink counters,
// tshark capture, configured classifier, Prometheus observability) and
// applies any Option overrides. No network connection is made here.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rt := &Runtime{cfg: cfg, configPath: o.configPath, handlers: o.handlers, closeLog: func() error { return nil }}

	if o.logger != nil {
		rt.logger = logging.Wrap(o.logger)
	} else {
		out, closeFn, err := logging.OpenOutput(cfg.Log.Output)
		if err != nil {
			return nil, err
		}
		rt.logger = logging.New(logging.Config{
			Level:         cfg.Log.Level,
			Format:        cfg.Log.Format,
			Output:        out,
			IncludeSource: cfg.Log.IncludeSource,
		})
		rt.closeLog = closeFn
	}

	rt.registry = o.registry
	if rt.registry == nil {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	rt.obs = o.obs
	if rt.obs == nil {
		rt.obs = observability.NewPromObs(rt.registry, rt.logger.Logger)
	}

	counters := o.counters
	if counters == nil {
		ifaces, err := netstat.NewInterfaces(cfg.Interface)
		if err != nil {
			return nil, err
		}
		counters = ifaces
	}

	resolver := o.gateway
	if resolver == nil && cfg.Sampler.Gateway == "" {
		resolver = netstat.NewGateway()
	}
	gateway := netstat.ResolveGateway(cfg.Sampler.Gateway, cfg.Sampler.FallbackGateway, resolver)

	prober := o.prober
	if prober == nil {
		prober = probe.NewICMPProber(probe.Config{
			Count:      cfg.Sampler.PingCount,
			Privileged: cfg.Sampler.Privileged,
		})
	}

	recorder := o.recorder
	if recorder == nil && cfg.Sampler.SnapshotPath != "" {
		fr, err := snapshot.NewFileRecorder(cfg.Sampler.SnapshotPath, cfg.Sampler.WindowSize)
		if err != nil {
			return nil, err
		}
		recorder = fr
	}

	rt.hub = fanout.NewHub(cfg.Fanout.InboxSize, cfg.Fanout.ObserverBuffer, rt.obs)
	rt.sampler = pipeline.NewSampler(pipeline.SamplerConfig{
		Period:       cfg.Sampler.Period,
		ExternalHost: cfg.Sampler.ExternalHost,
		Gateway:      gateway,
		ProbeTimeout: cfg.Sampler.ProbeTimeout,
		WindowSize:   cfg.Sampler.WindowSize,
	}, prober, counters, recorder, rt.hub, rt.obs)

	capturer := o.capturer
	if capturer == nil {
		capturer = capture.NewTshark(cfg.Capture.Tool, cfg.Interface)
	}

	classifier := o.classifier
	if classifier == nil {
		c, err := newClassifier(cfg.Classifier)
		if err != nil {
			return nil, err
		}
		classifier = c
	}

	tuning := o.tuning
	if tuning == nil {
		tuning = policy.NewThresholdTuning(cfg.Cycle.Step, cfg.Anomaly)
	}
	verdict := o.verdict
	if verdict == nil {
		verdict = policy.NewRatioVerdict(cfg.Cycle.VerdictRatio)
	}

	rt.gate = policy.NewGate(cfg.Anomaly)
	rt.stage = pipeline.NewCaptureClassifyStage(pipeline.StageConfig{
		OutputPath:      cfg.Capture.OutputPath,
		CaptureOverhead: cfg.Capture.Overhead,
		ClassifyTimeout: cfg.Classifier.Timeout,
		VerdictTimeout:  cfg.Cycle.VerdictTimeout,
	}, capturer, classifier, verdict, rt.obs)

	initial := domain.TuningState{
		CaptureDuration: cfg.Cycle.InitialCaptureDuration,
		CycleInterval:   cfg.Cycle.InitialCycleInterval,
	}
	rt.coordinator = pipeline.NewCoordinator(initial, rt.sampler, rt.gate,
		&pipeline.TuningStage{Policy: tuning, Timeout: cfg.Cycle.TuningTimeout},
		rt.stage, rt.hub, rt.obs)

	rt.history.sinks = o.sinks
	if rt.historyEnabled() {
		w := o.wal
		if w == nil {
			fw, err := wal.NewFileWAL(cfg.History.WALDir)
			if err != nil {
				return nil, err
			}
			w = fw
		}
		q := o.queue
		if q == nil {
			q = queue.NewMemQueue(cfg.History.Policy.MaxQueueLen)
		}
		rt.history.wal = w
		rt.history.queue = q
	}

	return rt, nil
}

func newClassifier(cfg config.ClassifierConfig) (Classifier, error) {
	switch cfg.Mode {
	case "", "http":
		return classify.NewHTTPClassifier(cfg.URL, cfg.Timeout), nil
	case "command":
		return classify.NewCommandClassifier(cfg.Command), nil
	default:
		return nil, fmt.Errorf("classifier mode %q is not supported", cfg.Mode)
	}
}

func (r *Runtime) historyEnabled() bool {
	return r.cfg.History.Enabled || r.cfg.Redis.Enabled() || len(r.history.sinks) > 0
}

// State returns the committed tuning state.
func (r *Runtime) State() TuningState { return r.coordinator.State() }

// Snapshot returns the current metrics window. It fails once Run has returned.
func (r *Runtime) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return r.sampler.Snapshot(ctx)
}

// Subscribe attaches a live observer; buffer <= 0 uses the configured size.
// It blocks until Run has started the hub or ctx is done.
func (r *Runtime) Subscribe(ctx context.Context, buffer int) (*Observer, error) {
	return r.hub.Subscribe(ctx, buffer)
}

// Unsubscribe detaches o and closes its channel.
func (r *Runtime) Unsubscribe(o *Observer) { r.hub.Unsubscribe(o) }

// Gatherer exposes the metrics registry.
func (r *Runtime) Gatherer() prometheus.Gatherer { return r.registry }

// Run binds the listeners and blocks until ctx is cancelled or a component
// fails. Failing to bind the fan-out listener is fatal. Everything is shut
// down before Run returns.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	fanLn, err := net.Listen("tcp", r.cfg.Fanout.Addr)
	if err != nil {
		r.obs.LogCritical("fanout_bind_failed", err, ports.Field{Key: "addr", Value: r.cfg.Fanout.Addr})
		return errors.Join(fmt.Errorf("fanout listener: %w", err), r.shutdown())
	}
	var metricsLn net.Listener
	if addr := r.cfg.Metrics.Addr; addr != "" && addr != r.cfg.Fanout.Addr {
		metricsLn, err = net.Listen("tcp", addr)
		if err != nil {
			fanLn.Close()
			return errors.Join(fmt.Errorf("metrics listener: %w", err), r.shutdown())
		}
	}

	r.connectHistory(ctx)

	var hist transport.HistorySource
	if r.history.store != nil {
		hist = r.history.store
	}
	server := transport.NewServer(transport.Config{
		WriteTimeout:   r.cfg.Fanout.WriteTimeout,
		ObserverBuffer: r.cfg.Fanout.ObserverBuffer,
		Gatherer:       r.registry,
	}, r.hub, r.coordinator, r.sampler, hist, r.obs)

	r.obs.LogInfo("runtime_started",
		ports.Field{Key: "fanout_addr", Value: fanLn.Addr().String()},
		ports.Field{Key: "interface", Value: r.cfg.Interface},
		ports.Field{Key: "history", Value: len(r.history.active) > 0},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.hub.Run(gctx) })
	g.Go(func() error { return r.sampler.Run(gctx) })
	g.Go(func() error { return r.coordinator.Run(gctx) })
	g.Go(func() error { return server.Serve(gctx, fanLn) })
	if metricsLn != nil {
		g.Go(func() error { return r.serveMetrics(gctx, metricsLn) })
	}
	if len(r.history.active) > 0 {
		r.runHistory(gctx, g)
	}
	for _, fn := range r.handlers {
		handler := fn
		g.Go(func() error { return r.runHandler(gctx, handler) })
	}
	g.Go(func() error { return r.recordResourceGauges(gctx, time.Second) })
	if r.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, r.configPath, r.applyConfig, func(err error) {
				r.obs.LogWarn("config_reload_failed", ports.Field{Key: "error", Value: err.Error()})
			})
		})
	}

	runErr := g.Wait()
	r.obs.LogInfo("runtime_stopped")
	return errors.Join(runErr, r.shutdown())
}

func (r *Runtime) serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Runtime) runHandler(ctx context.Context, fn EventHandler) error {
	o, err := r.hub.Subscribe(ctx, 0)
	if err != nil {
		if ctx.Err() != nil || fanout.IsStopped(err) {
			return nil
		}
		return err
	}
	defer r.hub.Unsubscribe(o)
	for ev := range o.C {
		fn(ev)
	}
	return nil
}

func (r *Runtime) recordResourceGauges(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if r.history.wal != nil {
				r.obs.SetGauge("aegis_wal_size_bytes", float64(r.history.wal.Stats().SizeBytes))
			}
			if r.history.queue != nil {
				r.obs.SetGauge("aegis_history_queue_length", float64(r.history.queue.Len()))
			}
		}
	}
}

// applyConfig takes the hot-reloadable part of a new config: gate
// thresholds and log level. Everything else needs a restart.
func (r *Runtime) applyConfig(cfg *Config) {
	r.gate.SetThresholds(cfg.Anomaly)
	if r.logger.Level() != logging.ParseLevel(cfg.Log.Level) {
		r.logger.SetLevel(cfg.Log.Level)
	}
	r.obs.LogInfo("config_reloaded",
		ports.Field{Key: "avg_latency_ms", Value: cfg.Anomaly.AvgLatency},
		ports.Field{Key: "max_latency_ms", Value: cfg.Anomaly.MaxLatency},
		ports.Field{Key: "avg_loss_percent", Value: cfg.Anomaly.AvgLoss},
		ports.Field{Key: "max_loss_percent", Value: cfg.Anomaly.MaxLoss},
		ports.Field{Key: "log_level", Value: cfg.Log.Level},
	)
}

// Shutdown closes stores, Redis and the WAL. Run calls it on exit; calling
// it again is a no-op that returns the first result.
func (r *Runtime) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- r.shutdown() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) shutdown() error {
	r.shutdownOnce.Do(func() {
		var errs []error
		r.hub.Stop()
		errs = append(errs, r.history.close())
		if err := r.closeLog(); err != nil {
			errs = append(errs, err)
		}
		r.shutdownErr = errors.Join(errs...)
	})
	return r.shutdownErr
}
