package domain

// DefaultWindowSize is the number of samples kept for aggregate computation.
const DefaultWindowSize = 15

// Window is a fixed-capacity FIFO of recent samples backed by a ring buffer.
// It is not safe for concurrent use; the sampler goroutine owns it and hands
// out Snapshots to everyone else.
type Window struct {
	samples []Sample
	size    int
	index   int
	count   int
}

// NewWindow creates a window holding at most size samples.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{
		samples: make([]Sample, size),
		size:    size,
	}
}

// Append adds s, evicting the oldest sample when the window is full.
func (w *Window) Append(s Sample) {
	w.samples[w.index] = s
	w.index = (w.index + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.count
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return w.size
}

// Reset drops every sample.
func (w *Window) Reset() {
	for i := range w.samples {
		w.samples[i] = Sample{}
	}
	w.index = 0
	w.count = 0
}

// Samples returns a copy of the held samples, oldest first.
func (w *Window) Samples() []Sample {
	out := make([]Sample, 0, w.count)
	start := (w.index - w.count + w.size) % w.size
	for i := 0; i < w.count; i++ {
		out = append(out, w.samples[(start+i)%w.size])
	}
	return out
}

// Snapshot returns an immutable copy of the window.
func (w *Window) Snapshot() Snapshot {
	return Snapshot{samples: w.Samples(), capacity: w.size}
}

// Aggregates computes statistics over the external probe. ok is false when no
// sample carries both a latency and a loss value.
func (w *Window) Aggregates() (Aggregates, bool) {
	return aggregate(w.Samples())
}

// Snapshot is a read-only view of the window at one point in time.
type Snapshot struct {
	samples  []Sample
	capacity int
}

// NewSnapshot builds a snapshot from samples ordered oldest first.
func NewSnapshot(samples []Sample) Snapshot {
	cp := make([]Sample, len(samples))
	copy(cp, samples)
	return Snapshot{samples: cp, capacity: len(cp)}
}

// Samples returns a copy of the snapshot samples, oldest first.
func (s Snapshot) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Len returns the number of samples in the snapshot.
func (s Snapshot) Len() int {
	return len(s.samples)
}

// Capacity returns the capacity of the window the snapshot was taken from.
func (s Snapshot) Capacity() int {
	return s.capacity
}

// Aggregates computes statistics over the snapshot; see Window.Aggregates.
func (s Snapshot) Aggregates() (Aggregates, bool) {
	return aggregate(s.samples)
}

func aggregate(samples []Sample) (Aggregates, bool) {
	var (
		agg        Aggregates
		sumLatency float64
		sumLoss    float64
	)
	for _, s := range samples {
		p := s.ExternalPing
		if !p.Valid() {
			continue
		}
		lat, loss := *p.Latency, *p.Loss
		if agg.Samples == 0 || lat > agg.MaxLatency {
			agg.MaxLatency = lat
		}
		if agg.Samples == 0 || loss > agg.MaxLoss {
			agg.MaxLoss = loss
		}
		sumLatency += lat
		sumLoss += loss
		agg.Samples++
	}
	if agg.Samples == 0 {
		return Aggregates{}, false
	}
	agg.AvgLatency = sumLatency / float64(agg.Samples)
	agg.AvgLoss = sumLoss / float64(agg.Samples)
	return agg, true
}
