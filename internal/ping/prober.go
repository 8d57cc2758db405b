package ping

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/doridoridoriand/connwatch/internal/config"
)

// Prober issues one bounded measurement against a target.
type Prober struct {
	pinger  Pinger
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber wraps pinger with a per-probe timeout.
func NewProber(pinger Pinger, timeout time.Duration, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{pinger: pinger, timeout: timeout, logger: logger}
}

// Probe measures target once. It never fails: faults are reported in the
// returned Outcome. ObservedAt is left for the caller to stamp.
func (p *Prober) Probe(ctx context.Context, target config.TargetConfig) (out Outcome) {
	out = Outcome{Target: target.Name, Address: target.Address}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("probe panicked", zap.String("target", target.Name), zap.Any("panic", r))
			out.Status = StatusError
			out.Delay, out.HasDelay = 0, false
			out.Err = fmt.Errorf("probe panicked: %v", r)
		}
	}()

	// The probe deadline is the timeout itself. Pingers allow their own
	// mechanism slightly longer so an expired deadline reads as StatusTimeout.
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result := p.pinger.Ping(probeCtx, target.Address, p.timeout)
	out.Status = result.Status
	out.Err = result.Error
	if out.Status == "" {
		out.Status = StatusError
	}

	if result.SubMillisecond {
		p.logger.Info("sub-millisecond reply, possible tunnel conflict",
			zap.String("target", target.Name),
			zap.String("address", target.Address),
		)
	}
	if out.Status == StatusSuccess && result.HasRTT && result.RTT >= 0 {
		out.Delay = result.RTT
		out.HasDelay = true
	}
	return out
}
