package probe

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

type Config struct {
	Count      int
	Interval   time.Duration
	Privileged bool
}

// ICMPProber sends a short burst of echo requests and reports average RTT in
// milliseconds and loss in percent.
type ICMPProber struct {
	cfg Config
}

func NewICMPProber(cfg Config) *ICMPProber {
	if cfg.Count <= 0 {
		cfg.Count = 4
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	return &ICMPProber{cfg: cfg}
}

// Probe never outlives ctx; callers bound it with the probe timeout.
func (p *ICMPProber) Probe(ctx context.Context, host string) (domain.PingResult, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return domain.PingResult{}, domain.ProbeError("resolve %s: %v", host, err)
	}
	pinger.Count = p.cfg.Count
	pinger.Interval = p.cfg.Interval
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}
	pinger.SetPrivileged(p.cfg.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil && ctx.Err() == nil {
		return domain.PingResult{}, domain.ProbeError("ping %s: %v", host, err)
	}
	return resultFromStats(host, pinger.Statistics())
}

func resultFromStats(host string, st *probing.Statistics) (domain.PingResult, error) {
	if st == nil || st.PacketsSent == 0 {
		return domain.PingResult{}, domain.ProbeError("ping %s: no packets sent", host)
	}
	if st.PacketsRecv == 0 {
		return domain.PingResult{}, domain.ProbeError("ping %s: %d packets lost", host, st.PacketsSent)
	}
	latency := float64(st.AvgRtt) / float64(time.Millisecond)
	return domain.PingResult{
		Latency: domain.Float(latency),
		Loss:    domain.Float(st.PacketLoss),
	}, nil
}

var _ ports.Prober = (*ICMPProber)(nil)
