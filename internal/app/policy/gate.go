package policy

import (
	"sync/atomic"

	"github.com/ghalamif/AegisNet/internal/domain"
)

// Thresholds above which the window is considered anomalous. Latencies are in
// milliseconds, losses in percent.
type Thresholds struct {
	AvgLatency float64 `yaml:"avg_latency_ms"`
	MaxLatency float64 `yaml:"max_latency_ms"`
	AvgLoss    float64 `yaml:"avg_loss_percent"`
	MaxLoss    float64 `yaml:"max_loss_percent"`
}

// DefaultThresholds mirror the capture guidelines of the monitoring agent.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AvgLatency: 75,
		MaxLatency: 100,
		AvgLoss:    5,
		MaxLoss:    10,
	}
}

// Exceeded is the anomaly predicate. It is monotonic in every aggregate.
func (t Thresholds) Exceeded(agg domain.Aggregates) bool {
	return agg.AvgLatency > t.AvgLatency ||
		agg.MaxLatency > t.MaxLatency ||
		agg.AvgLoss > t.AvgLoss ||
		agg.MaxLoss > t.MaxLoss
}

// Gate decides whether the feedback cycle should fire. Thresholds can be
// swapped at runtime (config reload) without locking the coordinator.
type Gate struct {
	thresholds atomic.Pointer[Thresholds]
}

func NewGate(t Thresholds) *Gate {
	g := &Gate{}
	g.SetThresholds(t)
	return g
}

func (g *Gate) SetThresholds(t Thresholds) {
	g.thresholds.Store(&t)
}

func (g *Gate) Thresholds() Thresholds {
	return *g.thresholds.Load()
}

// ShouldCapture returns false when aggregates are unavailable.
func (g *Gate) ShouldCapture(agg domain.Aggregates, ok bool) bool {
	if !ok {
		return false
	}
	return g.Thresholds().Exceeded(agg)
}
