package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisNet/internal/domain"
)

func TestGateFiresOnAnyThreshold(t *testing.T) {
	g := NewGate(DefaultThresholds())

	cases := []struct {
		name string
		agg  domain.Aggregates
		want bool
	}{
		{"quiet", domain.Aggregates{AvgLatency: 20, MaxLatency: 40, AvgLoss: 0, MaxLoss: 0}, false},
		{"avg latency", domain.Aggregates{AvgLatency: 80, MaxLatency: 90}, true},
		{"max latency", domain.Aggregates{AvgLatency: 30, MaxLatency: 101}, true},
		{"avg loss", domain.Aggregates{AvgLoss: 5.5, MaxLoss: 6}, true},
		{"max loss", domain.Aggregates{AvgLoss: 1, MaxLoss: 11}, true},
		{"at threshold", domain.Aggregates{AvgLatency: 75, MaxLatency: 100, AvgLoss: 5, MaxLoss: 10}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.ShouldCapture(tc.agg, true))
		})
	}
}

func TestGateUnavailableAggregatesNeverFire(t *testing.T) {
	g := NewGate(DefaultThresholds())
	assert.False(t, g.ShouldCapture(domain.Aggregates{AvgLatency: 1000, MaxLoss: 100}, false))
}

func TestGateIsMonotonic(t *testing.T) {
	g := NewGate(DefaultThresholds())
	base := domain.Aggregates{AvgLatency: 76, MaxLatency: 50, AvgLoss: 1, MaxLoss: 2}
	require.True(t, g.ShouldCapture(base, true))

	worse := base
	worse.AvgLatency += 10
	worse.MaxLoss += 5
	assert.True(t, g.ShouldCapture(worse, true))
}

func TestGateThresholdSwap(t *testing.T) {
	g := NewGate(DefaultThresholds())
	agg := domain.Aggregates{AvgLatency: 60, MaxLatency: 70}
	require.False(t, g.ShouldCapture(agg, true))

	th := DefaultThresholds()
	th.AvgLatency = 50
	g.SetThresholds(th)
	assert.True(t, g.ShouldCapture(agg, true))
	assert.Equal(t, 50.0, g.Thresholds().AvgLatency)
}

func TestTuningAggressiveStep(t *testing.T) {
	p := NewThresholdTuning(DefaultStep, DefaultThresholds())
	prior := domain.TuningState{CaptureDuration: 50 * time.Second, CycleInterval: 20 * time.Second}

	next, err := p.Tune(context.Background(), domain.TuningInput{AvgLatency: 80, AvgLoss: 1}, prior)
	require.NoError(t, err)
	assert.Equal(t, 63*time.Second, next.CaptureDuration)
	assert.Equal(t, 16*time.Second, next.CycleInterval)
}

func TestTuningConservativeStep(t *testing.T) {
	p := NewThresholdTuning(DefaultStep, DefaultThresholds())
	prior := domain.TuningState{CaptureDuration: 50 * time.Second, CycleInterval: 20 * time.Second}

	next, err := p.Tune(context.Background(), domain.TuningInput{AvgLatency: 10, AvgLoss: 0}, prior)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, next.CaptureDuration)
	assert.Equal(t, 23*time.Second, next.CycleInterval)
}

func TestTuningPreviousAttackIsAggressive(t *testing.T) {
	p := NewThresholdTuning(DefaultStep, DefaultThresholds())
	assert.True(t, p.Aggressive(domain.TuningInput{PreviousAttackDetected: true}))
	assert.False(t, p.Aggressive(domain.TuningInput{AvgLatency: 75, AvgLoss: 5}))
}

func TestTuningStaysInBoundsAndConverges(t *testing.T) {
	p := NewThresholdTuning(DefaultStep, DefaultThresholds())
	st := domain.TuningState{CaptureDuration: 30 * time.Second, CycleInterval: 30 * time.Second}
	in := domain.TuningInput{PreviousAttackDetected: true}

	for i := 0; i < 40; i++ {
		next, err := p.Tune(context.Background(), in, st)
		require.NoError(t, err)
		require.True(t, next.InBounds(), "iteration %d produced %+v", i, next)
		require.GreaterOrEqual(t, next.CaptureDuration, st.CaptureDuration)
		require.LessOrEqual(t, next.CycleInterval, st.CycleInterval)
		st = next
	}
	assert.Equal(t, domain.MaxCaptureDuration, st.CaptureDuration)
	assert.Equal(t, domain.MinCycleInterval, st.CycleInterval)
}

func TestTuningClampsOutOfRangePrior(t *testing.T) {
	p := NewThresholdTuning(DefaultStep, DefaultThresholds())
	prior := domain.TuningState{CaptureDuration: 18 * time.Second, CycleInterval: 2 * time.Second}
	next, err := p.Tune(context.Background(), domain.TuningInput{}, prior)
	require.NoError(t, err)
	assert.True(t, next.InBounds())
}

func TestTuningCancelledReturnsPrior(t *testing.T) {
	p := NewThresholdTuning(DefaultStep, DefaultThresholds())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prior := domain.TuningState{CaptureDuration: 40 * time.Second, CycleInterval: 10 * time.Second}
	next, err := p.Tune(ctx, domain.TuningInput{AvgLatency: 200}, prior)
	require.Error(t, err)
	assert.Equal(t, prior, next)
}

func TestVerdictMostlyNormal(t *testing.T) {
	v := NewRatioVerdict(DefaultVerdictRatio).Derive(domain.Histogram{"Normal": 39})
	assert.False(t, v.AttackDetected)
	assert.Nil(t, v.Details)
}

func TestVerdictDominantAttack(t *testing.T) {
	v := NewRatioVerdict(DefaultVerdictRatio).Derive(domain.Histogram{"Normal": 2, "DDoS": 98})
	require.True(t, v.AttackDetected)
	require.NotNil(t, v.Details)
	assert.Contains(t, *v.Details, "DDoS (98 packets)")
}

func TestVerdictEdgeCases(t *testing.T) {
	p := NewRatioVerdict(DefaultVerdictRatio)

	assert.False(t, p.Derive(domain.Histogram{}).AttackDetected, "empty histogram")
	assert.False(t, p.Derive(nil).AttackDetected, "nil histogram")
	assert.True(t, p.Derive(domain.Histogram{"PortScan": 5}).AttackDetected, "attack without normal")
	// 10 normal vs 100 attack sits exactly on the ratio and is not negligible.
	assert.False(t, p.Derive(domain.Histogram{"Normal": 10, "DDoS": 100}).AttackDetected)
	assert.True(t, p.Derive(domain.Histogram{"Normal": 9, "DDoS": 100}).AttackDetected)
}

func TestVerdictDetailsListsTopLabels(t *testing.T) {
	h := domain.Histogram{"DDoS": 50, "PortScan": 40, "Bot": 30, "Worms": 20}
	v := NewRatioVerdict(DefaultVerdictRatio).Derive(h)
	require.NotNil(t, v.Details)
	assert.Contains(t, *v.Details, "Bot")
	assert.NotContains(t, *v.Details, "Worms")
	assert.Equal(t, h, v.Histogram)
}
