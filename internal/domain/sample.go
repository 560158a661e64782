package domain

import "time"

// PingResult is the outcome of one probe burst against a host. A nil field
// means the probe could not produce that value; zero is a real measurement.
type PingResult struct {
	Latency *float64 `json:"avg_latency"`
	Loss    *float64 `json:"packet_loss"`
}

// Valid reports whether both latency and loss were measured.
func (p PingResult) Valid() bool {
	return p.Latency != nil && p.Loss != nil
}

// Sample is the canonical unit of network health in AegisNet. It is created
// once per sampler tick and never mutated after it enters the window.
type Sample struct {
	Timestamp      time.Time  `json:"timestamp"`
	BytesSent      uint64     `json:"bytes_sent"`
	BytesRecv      uint64     `json:"bytes_recv"`
	ThroughputSent float64    `json:"throughput_sent"`
	ThroughputRecv float64    `json:"throughput_recv"`
	ExternalPing   PingResult `json:"external_ping"`
	LocalPing      PingResult `json:"local_ping"`
}

// Aggregates are derived from the window at read time.
type Aggregates struct {
	AvgLatency float64 `json:"avg_latency"`
	MaxLatency float64 `json:"max_latency"`
	AvgLoss    float64 `json:"avg_loss"`
	MaxLoss    float64 `json:"max_loss"`
	Samples    int     `json:"samples"`
}

// Float returns a pointer to v. Handy for building PingResults.
func Float(v float64) *float64 {
	return &v
}
