package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// WindowAccess is how the coordinator reaches the sampler-owned window.
type WindowAccess interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	Reset(ctx context.Context) error
}

// AnomalyGate decides whether a cycle should capture.
type AnomalyGate interface {
	ShouldCapture(agg domain.Aggregates, ok bool) bool
}

// Tuner proposes a candidate tuning state. It returns prior on failure.
type Tuner interface {
	Run(ctx context.Context, in domain.TuningInput, prior domain.TuningState) (domain.TuningState, error)
}

// CycleStage performs capture and classification for one cycle.
type CycleStage interface {
	Run(ctx context.Context, cycleID string, duration time.Duration) (domain.Verdict, error)
}

type CycleOutcome string

const (
	CycleSkipped   CycleOutcome = "skipped"
	CycleCommitted CycleOutcome = "committed"
	CycleFailed    CycleOutcome = "failed"
)

// CycleResult describes one finished cycle.
type CycleResult struct {
	ID      string
	Outcome CycleOutcome
	Verdict *domain.Verdict
	State   domain.TuningState
	Err     error
}

// Coordinator owns the TuningState and is the only component allowed to start
// a capture. Cycles never overlap.
type Coordinator struct {
	window WindowAccess
	gate   AnomalyGate
	tuner  Tuner
	stage  CycleStage
	pub    ports.Publisher
	obs    ports.Observability

	state   atomic.Pointer[domain.TuningState]
	lastAgg atomic.Pointer[domain.Aggregates]
	cycles  atomic.Uint64

	after func(time.Duration) <-chan time.Time
	now   func() time.Time
}

func NewCoordinator(initial domain.TuningState, window WindowAccess, gate AnomalyGate, tuner Tuner, stage CycleStage, pub ports.Publisher, obs ports.Observability) *Coordinator {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	c := &Coordinator{
		window: window,
		gate:   gate,
		tuner:  tuner,
		stage:  stage,
		pub:    pub,
		obs:    obs,
		after:  time.After,
		now:    time.Now,
	}
	st := initial.Clamp()
	c.state.Store(&st)
	return c
}

// State returns a copy of the committed tuning state.
func (c *Coordinator) State() domain.TuningState {
	return *c.state.Load()
}

// LastAggregates returns the aggregates seen by the most recent check.
func (c *Coordinator) LastAggregates() (domain.Aggregates, bool) {
	agg := c.lastAgg.Load()
	if agg == nil {
		return domain.Aggregates{}, false
	}
	return *agg, true
}

// Cycles is the number of cycles that reached CHECK.
func (c *Coordinator) Cycles() uint64 {
	return c.cycles.Load()
}

// Run loops WAIT_INTERVAL -> cycle until ctx is cancelled. The interval is
// re-read from the committed state on every iteration.
func (c *Coordinator) Run(ctx context.Context) error {
	c.publishGauges(c.State())
	for {
		interval := c.State().CycleInterval
		select {
		case <-ctx.Done():
			c.obs.LogInfo("coordinator_stopped")
			return nil
		case <-c.after(interval):
		}
		c.RunCycle(ctx)
	}
}

// RunCycle performs CHECK_ANOMALY and, when the gate fires, TUNE,
// CAPTURE_CLASSIFY and FOLD_RESULT.
func (c *Coordinator) RunCycle(ctx context.Context) CycleResult {
	c.cycles.Add(1)
	prior := c.State()

	snap, err := c.window.Snapshot(ctx)
	if err != nil {
		return CycleResult{Outcome: CycleSkipped, State: prior, Err: err}
	}
	agg, ok := snap.Aggregates()
	if ok {
		c.lastAgg.Store(&agg)
	} else {
		c.lastAgg.Store(nil)
	}

	if !c.gate.ShouldCapture(agg, ok) {
		c.obs.IncCounter("aegis_cycles_skipped_total", 1)
		c.obs.LogDebug("cycle_skipped", ports.Field{Key: "aggregates_available", Value: ok})
		return CycleResult{Outcome: CycleSkipped, State: prior}
	}

	cycleID := uuid.NewString()
	c.obs.IncCounter("aegis_cycles_started_total", 1)
	c.obs.LogInfo("cycle_started",
		ports.Field{Key: "cycle_id", Value: cycleID},
		ports.Field{Key: "avg_latency_ms", Value: agg.AvgLatency},
		ports.Field{Key: "max_latency_ms", Value: agg.MaxLatency},
		ports.Field{Key: "avg_loss_percent", Value: agg.AvgLoss},
		ports.Field{Key: "max_loss_percent", Value: agg.MaxLoss},
	)

	candidate, err := c.tuner.Run(ctx, domain.TuningInput{
		AvgLatency:             agg.AvgLatency,
		AvgLoss:                agg.AvgLoss,
		PreviousAttackDetected: prior.PreviousAttackDetected,
	}, prior)
	if err != nil {
		if ctx.Err() != nil {
			return CycleResult{ID: cycleID, Outcome: CycleFailed, State: prior, Err: ctx.Err()}
		}
		candidate = prior
		c.degraded(cycleID, err)
	}

	verdict, err := c.captureClassify(ctx, cycleID, candidate.CaptureDuration)
	if err != nil {
		c.failed(cycleID, err)
		return CycleResult{ID: cycleID, Outcome: CycleFailed, State: c.State(), Err: err}
	}

	committed := c.fold(ctx, cycleID, candidate, verdict)
	return CycleResult{ID: cycleID, Outcome: CycleCommitted, Verdict: &verdict, State: committed}
}

// captureClassify runs the stage off the coordinator goroutine so a shutdown
// does not wait for a stuck collaborator.
func (c *Coordinator) captureClassify(ctx context.Context, cycleID string, duration time.Duration) (domain.Verdict, error) {
	type result struct {
		v   domain.Verdict
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := c.stage.Run(ctx, cycleID, duration)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil && ctx.Err() != nil {
			return domain.Verdict{}, ctx.Err()
		}
		return r.v, r.err
	case <-ctx.Done():
		return domain.Verdict{}, ctx.Err()
	}
}

func (c *Coordinator) fold(ctx context.Context, cycleID string, candidate domain.TuningState, v domain.Verdict) domain.TuningState {
	candidate.PreviousAttackDetected = v.AttackDetected
	candidate = candidate.Clamp()
	c.state.Store(&candidate)

	if err := c.window.Reset(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.obs.LogWarn("window_reset_failed", ports.Field{Key: "cycle_id", Value: cycleID}, ports.Field{Key: "error", Value: err.Error()})
	}

	at := c.now()
	c.publish(domain.NewVerdictEvent(v, at))
	c.publish(domain.NewTuningEvent(candidate, at))
	c.publishGauges(candidate)

	fields := []ports.Field{
		{Key: "cycle_id", Value: cycleID},
		{Key: "attack_detected", Value: v.AttackDetected},
		{Key: "capture_duration", Value: candidate.CaptureDuration.String()},
		{Key: "cycle_interval", Value: candidate.CycleInterval.String()},
	}
	if v.AttackDetected {
		c.obs.IncCounter("aegis_attacks_detected_total", 1)
		if v.Details != nil {
			fields = append(fields, ports.Field{Key: "details", Value: *v.Details})
		}
		c.obs.LogWarn("attack_detected", fields...)
	} else {
		c.obs.LogInfo("cycle_committed", fields...)
	}
	return candidate
}

func (c *Coordinator) degraded(cycleID string, err error) {
	c.obs.IncCounter("aegis_policy_timeouts_total", 1)
	c.obs.LogWarn("tuning_degraded",
		ports.Field{Key: "cycle_id", Value: cycleID},
		ports.Field{Key: "error", Value: err.Error()},
	)
	c.publish(domain.NewErrorEvent(domain.ErrorKind(err), cycleID, err, c.now()))
}

func (c *Coordinator) failed(cycleID string, err error) {
	kind := domain.ErrorKind(err)
	switch {
	case errors.Is(err, domain.ErrCaptureFailed):
		c.obs.IncCounter("aegis_captures_failed_total", 1)
	case errors.Is(err, domain.ErrClassifyFailed):
		c.obs.IncCounter("aegis_classify_failed_total", 1)
	case errors.Is(err, domain.ErrPolicyTimeout):
		c.obs.IncCounter("aegis_policy_timeouts_total", 1)
	case errors.Is(err, context.Canceled):
		return
	}
	c.obs.LogError("cycle_failed", err,
		ports.Field{Key: "cycle_id", Value: cycleID},
		ports.Field{Key: "kind", Value: kind},
	)
	c.publish(domain.NewErrorEvent(kind, cycleID, err, c.now()))
}

func (c *Coordinator) publish(ev *domain.Event) {
	if c.pub == nil {
		return
	}
	if !c.pub.Publish(ev) {
		c.obs.IncCounter("aegis_fanout_dropped_total", 1)
	}
}

func (c *Coordinator) publishGauges(st domain.TuningState) {
	c.obs.SetGauge("aegis_capture_duration_seconds", st.CaptureDuration.Seconds())
	c.obs.SetGauge("aegis_cycle_interval_seconds", st.CycleInterval.Seconds())
}
