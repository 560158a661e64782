package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// DefaultVerdictRatio: Normal traffic must be below 10% of attack traffic.
const DefaultVerdictRatio = 0.1

// RatioVerdict flags an attack when attack packets exist and Normal packets are
// below attack_total * Ratio.
type RatioVerdict struct {
	Ratio     float64
	TopLabels int
}

func NewRatioVerdict(ratio float64) *RatioVerdict {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultVerdictRatio
	}
	return &RatioVerdict{Ratio: ratio, TopLabels: 3}
}

func (p *RatioVerdict) Decide(ctx context.Context, h domain.Histogram) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}
	return p.Derive(h), nil
}

// Derive is the pure verdict rule.
func (p *RatioVerdict) Derive(h domain.Histogram) domain.Verdict {
	normal := h.Normal()
	attack := h.AttackTotal()
	v := domain.Verdict{Histogram: h.Clone()}
	if attack <= 0 || float64(normal) >= float64(attack)*p.Ratio {
		return v
	}
	v.AttackDetected = true
	details := p.describe(h, normal)
	v.Details = &details
	return v
}

func (p *RatioVerdict) describe(h domain.Histogram, normal int) string {
	top := p.TopLabels
	if top <= 0 {
		top = 3
	}
	parts := make([]string, 0, top)
	for _, lc := range h.Dominant(top) {
		parts = append(parts, fmt.Sprintf("%s (%d packets)", lc.Label, lc.Count))
	}
	return fmt.Sprintf("dominant attack traffic: %s; normal %d of %d",
		strings.Join(parts, ", "), normal, h.Total())
}

var _ ports.VerdictPolicy = (*RatioVerdict)(nil)
