package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Bounds for the tunable cycle parameters.
const (
	MinCaptureDuration = 30 * time.Second
	MaxCaptureDuration = 100 * time.Second
	MinCycleInterval   = 5 * time.Second
	MaxCycleInterval   = 30 * time.Second
)

// TuningState drives the coordinator's cadence. Only the coordinator writes it.
type TuningState struct {
	CaptureDuration        time.Duration
	CycleInterval          time.Duration
	PreviousAttackDetected bool
}

// tuningJSON is the wire form: durations travel as seconds, like the HTTP API.
type tuningJSON struct {
	CaptureDurationSeconds float64 `json:"capture_duration_seconds"`
	CycleIntervalSeconds   float64 `json:"cycle_interval_seconds"`
	PreviousAttackDetected bool    `json:"previous_attack_detected"`
}

func (t TuningState) MarshalJSON() ([]byte, error) {
	return json.Marshal(tuningJSON{
		CaptureDurationSeconds: t.CaptureDuration.Seconds(),
		CycleIntervalSeconds:   t.CycleInterval.Seconds(),
		PreviousAttackDetected: t.PreviousAttackDetected,
	})
}

func (t *TuningState) UnmarshalJSON(b []byte) error {
	var w tuningJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	t.CaptureDuration = seconds(w.CaptureDurationSeconds)
	t.CycleInterval = seconds(w.CycleIntervalSeconds)
	t.PreviousAttackDetected = w.PreviousAttackDetected
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}

// Clamp returns a copy with duration and interval forced into their bounds.
func (t TuningState) Clamp() TuningState {
	t.CaptureDuration = clampDuration(t.CaptureDuration, MinCaptureDuration, MaxCaptureDuration)
	t.CycleInterval = clampDuration(t.CycleInterval, MinCycleInterval, MaxCycleInterval)
	return t
}

// InBounds reports whether both parameters already sit inside their ranges.
func (t TuningState) InBounds() bool {
	return t.CaptureDuration >= MinCaptureDuration && t.CaptureDuration <= MaxCaptureDuration &&
		t.CycleInterval >= MinCycleInterval && t.CycleInterval <= MaxCycleInterval
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TuningInput is what a tuning policy decides on.
type TuningInput struct {
	AvgLatency             float64
	AvgLoss                float64
	PreviousAttackDetected bool
}
