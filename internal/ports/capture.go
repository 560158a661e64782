package ports

import (
	"context"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
)

// Capturer blocks while writing raw traffic for duration into outputPath.
type Capturer interface {
	Capture(ctx context.Context, duration time.Duration, outputPath string) error
}

// Classifier turns a captured artifact into per-label packet counts.
type Classifier interface {
	Classify(ctx context.Context, artifactPath string) (domain.Histogram, error)
}

// TuningPolicy proposes the next tuning state. The deterministic threshold
// policy and any remote or learned policy share this contract.
type TuningPolicy interface {
	Tune(ctx context.Context, in domain.TuningInput, prior domain.TuningState) (domain.TuningState, error)
}

// VerdictPolicy decides whether a histogram represents an attack.
type VerdictPolicy interface {
	Decide(ctx context.Context, h domain.Histogram) (domain.Verdict, error)
}
