package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names the kinds of messages pushed to telemetry observers.
type EventType string

const (
	EventMetrics         EventType = "metrics"
	EventAttackDetection EventType = "attack_detection"
	EventTuning          EventType = "tuning"
	EventError           EventType = "error"
)

// ErrorInfo describes a degraded cycle or probe on the telemetry channel.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	CycleID string `json:"cycle_id,omitempty"`
}

// Event is the envelope for everything published to the fan-out sink.
type Event struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	Timestamp  time.Time    `json:"timestamp"`
	Sample     *Sample      `json:"sample,omitempty"`
	Aggregates *Aggregates  `json:"aggregates"`
	Verdict    *Verdict     `json:"verdict,omitempty"`
	Tuning     *TuningState `json:"tuning,omitempty"`
	Error      *ErrorInfo   `json:"error,omitempty"`
}

// NewMetricsEvent wraps a freshly appended sample and the window aggregates.
// agg is nil when aggregates are unavailable.
func NewMetricsEvent(s Sample, agg *Aggregates) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       EventMetrics,
		Timestamp:  s.Timestamp,
		Sample:     &s,
		Aggregates: agg,
	}
}

// NewVerdictEvent wraps a verdict for observers.
func NewVerdictEvent(v Verdict, at time.Time) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventAttackDetection,
		Timestamp: at,
		Verdict:   &v,
	}
}

// NewTuningEvent announces a committed tuning state.
func NewTuningEvent(t TuningState, at time.Time) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventTuning,
		Timestamp: at,
		Tuning:    &t,
	}
}

// NewErrorEvent reports a non-fatal pipeline failure.
func NewErrorEvent(kind, cycleID string, err error, at time.Time) *Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventError,
		Timestamp: at,
		Error:     &ErrorInfo{Kind: kind, Message: msg, CycleID: cycleID},
	}
}
