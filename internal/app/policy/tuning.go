package policy

import (
	"context"
	"math"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// DefaultStep is the fraction of the remaining distance to a bound covered per cycle.
const DefaultStep = 0.25

// ThresholdTuning moves towards aggressive monitoring (longer captures, shorter
// intervals) when an attack was seen or the network is degraded, and towards
// conservative monitoring otherwise.
type ThresholdTuning struct {
	Step       float64
	AvgLatency float64
	AvgLoss    float64
}

// NewThresholdTuning uses the avg latency/loss thresholds from t.
func NewThresholdTuning(step float64, t Thresholds) *ThresholdTuning {
	if step <= 0 || step > 1 {
		step = DefaultStep
	}
	return &ThresholdTuning{Step: step, AvgLatency: t.AvgLatency, AvgLoss: t.AvgLoss}
}

// Aggressive reports which direction the policy will move for in.
func (p *ThresholdTuning) Aggressive(in domain.TuningInput) bool {
	return in.PreviousAttackDetected || in.AvgLatency > p.AvgLatency || in.AvgLoss > p.AvgLoss
}

func (p *ThresholdTuning) Tune(ctx context.Context, in domain.TuningInput, prior domain.TuningState) (domain.TuningState, error) {
	if err := ctx.Err(); err != nil {
		return prior, err
	}
	cur := prior.Clamp()
	next := cur
	if p.Aggressive(in) {
		next.CaptureDuration = towards(cur.CaptureDuration, domain.MaxCaptureDuration, p.Step)
		next.CycleInterval = towards(cur.CycleInterval, domain.MinCycleInterval, p.Step)
	} else {
		next.CaptureDuration = towards(cur.CaptureDuration, domain.MinCaptureDuration, p.Step)
		next.CycleInterval = towards(cur.CycleInterval, domain.MaxCycleInterval, p.Step)
	}
	return next.Clamp(), nil
}

// towards moves cur by ceil(step * distance) whole seconds in the direction of target.
func towards(cur, target time.Duration, step float64) time.Duration {
	dist := (target - cur).Seconds()
	if dist == 0 {
		return cur
	}
	move := math.Ceil(math.Abs(dist) * step)
	if move > math.Abs(dist) {
		move = math.Abs(dist)
	}
	if dist < 0 {
		move = -move
	}
	return cur + time.Duration(move*float64(time.Second))
}

var _ ports.TuningPolicy = (*ThresholdTuning)(nil)
