package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// TuningStage invokes a TuningPolicy under a deadline. Whatever goes wrong,
// the caller gets the prior state back.
type TuningStage struct {
	Policy  ports.TuningPolicy
	Timeout time.Duration
}

func (t *TuningStage) Run(ctx context.Context, in domain.TuningInput, prior domain.TuningState) (domain.TuningState, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		state domain.TuningState
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		st, err := t.Policy.Tune(tctx, in, prior)
		ch <- result{st, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return prior, fmt.Errorf("tuning policy: %w", domain.ErrPolicyTimeout)
			}
			return prior, fmt.Errorf("tuning policy: %w", r.err)
		}
		return r.state.Clamp(), nil
	case <-tctx.Done():
		if ctx.Err() != nil {
			return prior, ctx.Err()
		}
		return prior, fmt.Errorf("tuning policy after %s: %w", timeout, domain.ErrPolicyTimeout)
	}
}
