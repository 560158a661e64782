package fanout

import "errors"

var (
	errHubStopped = errors.New("fanout: hub stopped")
	errHubRunning = errors.New("fanout: hub already running")
)

// IsStopped reports whether err came from subscribing to a stopped hub.
func IsStopped(err error) bool {
	return errors.Is(err, errHubStopped)
}
