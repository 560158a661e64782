package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

type StageState string

const (
	StageIdle        StageState = "idle"
	StageCapturing   StageState = "capturing"
	StageClassifying StageState = "classifying"
	StageDone        StageState = "done"
	StageFailed      StageState = "failed"
)

type StageConfig struct {
	OutputPath      string
	CaptureOverhead time.Duration
	ClassifyTimeout time.Duration
	VerdictTimeout  time.Duration
}

// CaptureClassifyStage runs one capture, classifies the artifact and derives a
// verdict. It never retries; the next cycle may.
type CaptureClassifyStage struct {
	cfg        StageConfig
	capturer   ports.Capturer
	classifier ports.Classifier
	verdict    ports.VerdictPolicy
	obs        ports.Observability

	mu    sync.Mutex
	state StageState
}

func NewCaptureClassifyStage(cfg StageConfig, capturer ports.Capturer, classifier ports.Classifier, verdict ports.VerdictPolicy, obs ports.Observability) *CaptureClassifyStage {
	if cfg.CaptureOverhead <= 0 {
		cfg.CaptureOverhead = 10 * time.Second
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 60 * time.Second
	}
	if cfg.VerdictTimeout <= 0 {
		cfg.VerdictTimeout = 5 * time.Second
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &CaptureClassifyStage{
		cfg:        cfg,
		capturer:   capturer,
		classifier: classifier,
		verdict:    verdict,
		obs:        obs,
		state:      StageIdle,
	}
}

func (s *CaptureClassifyStage) State() StageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CaptureClassifyStage) transition(cycleID string, to StageState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	s.obs.LogDebug("stage_transition",
		ports.Field{Key: "cycle_id", Value: cycleID},
		ports.Field{Key: "from", Value: string(from)},
		ports.Field{Key: "to", Value: string(to)},
	)
}

// Run blocks for up to duration+overhead+classify timeout.
func (s *CaptureClassifyStage) Run(ctx context.Context, cycleID string, duration time.Duration) (domain.Verdict, error) {
	start := time.Now()
	defer func() {
		s.obs.ObserveLatency("aegis_capture_classify_seconds", time.Since(start).Seconds())
	}()

	s.transition(cycleID, StageCapturing)
	if err := s.capture(ctx, duration); err != nil {
		s.transition(cycleID, StageFailed)
		return domain.Verdict{}, err
	}

	s.transition(cycleID, StageClassifying)
	hist, err := s.classify(ctx)
	if err != nil {
		s.transition(cycleID, StageFailed)
		return domain.Verdict{}, err
	}

	vctx, cancel := context.WithTimeout(ctx, s.cfg.VerdictTimeout)
	defer cancel()
	v, err := s.verdict.Decide(vctx, hist)
	if err != nil {
		s.transition(cycleID, StageFailed)
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Verdict{}, fmt.Errorf("verdict policy: %w", domain.ErrPolicyTimeout)
		}
		return domain.Verdict{}, fmt.Errorf("verdict policy: %w", err)
	}
	v.CycleID = cycleID
	s.transition(cycleID, StageDone)
	return v, nil
}

func (s *CaptureClassifyStage) capture(ctx context.Context, duration time.Duration) error {
	if dir := filepath.Dir(s.cfg.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.CaptureError("create capture dir %s: %v", dir, err)
		}
	}
	cctx, cancel := context.WithTimeout(ctx, duration+s.cfg.CaptureOverhead)
	defer cancel()

	if err := s.capturer.Capture(cctx, duration, s.cfg.OutputPath); err != nil {
		if errors.Is(err, domain.ErrCaptureFailed) {
			return err
		}
		return domain.CaptureError("capture %s for %s: %v", s.cfg.OutputPath, duration, err)
	}
	return nil
}

func (s *CaptureClassifyStage) classify(ctx context.Context) (domain.Histogram, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ClassifyTimeout)
	defer cancel()

	hist, err := s.classifier.Classify(cctx, s.cfg.OutputPath)
	if err != nil {
		if errors.Is(err, domain.ErrClassifyFailed) {
			return nil, err
		}
		return nil, domain.ClassifyError("classify %s: %v", s.cfg.OutputPath, err)
	}
	if hist == nil {
		hist = domain.Histogram{}
	}
	return hist, nil
}
