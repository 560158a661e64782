package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProbeUnavailable indicates a single ping probe produced no values.
	ErrProbeUnavailable = errors.New("probe unavailable")

	// ErrCaptureFailed indicates the traffic capture collaborator failed.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrClassifyFailed indicates the packet classifier failed.
	ErrClassifyFailed = errors.New("classify failed")

	// ErrPolicyTimeout indicates a tuning or verdict policy did not answer in time.
	ErrPolicyTimeout = errors.New("policy timeout")

	// ErrWindowUnavailable indicates the window owner is gone (sampler stopped).
	ErrWindowUnavailable = errors.New("window unavailable")
)

// ProbeError wraps ErrProbeUnavailable with context.
func ProbeError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrProbeUnavailable)
}

// CaptureError wraps ErrCaptureFailed with context.
func CaptureError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrCaptureFailed)
}

// ClassifyError wraps ErrClassifyFailed with context.
func ClassifyError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrClassifyFailed)
}

// ErrorKind maps an error onto the taxonomy used in logs and error events.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProbeUnavailable):
		return "probe_unavailable"
	case errors.Is(err, ErrCaptureFailed):
		return "capture_failed"
	case errors.Is(err, ErrClassifyFailed):
		return "classify_failed"
	case errors.Is(err, ErrPolicyTimeout):
		return "policy_timeout"
	case errors.Is(err, ErrWindowUnavailable):
		return "window_unavailable"
	default:
		return "internal"
	}
}
