package ping

import (
	"context"
	"time"
)

// Status is the outcome class of a single probe.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Failure reports whether s counts against a target's health.
func (s Status) Failure() bool {
	return s != StatusSuccess
}

// Result captures a single ping result. RTT is meaningful only when HasRTT is set.
type Result struct {
	Status Status
	RTT    time.Duration
	HasRTT bool
	// SubMillisecond is set when the reply carried a "time<1ms" marker, which
	// usually means a tunnel answered locally.
	SubMillisecond bool
	Error          error
}

// Pinger sends a single ping and returns the result. Implementations never
// return errors out of band: every failure is folded into Result.
type Pinger interface {
	Ping(ctx context.Context, addr string, timeout time.Duration) Result
}

// Outcome is one stamped measurement for a named target.
type Outcome struct {
	Target     string
	Address    string
	ObservedAt time.Time
	Status     Status
	Delay      time.Duration
	HasDelay   bool
	Err        error
}

// DelayMillis returns the delay in fractional milliseconds, if present.
func (o Outcome) DelayMillis() (float64, bool) {
	if !o.HasDelay {
		return 0, false
	}
	return float64(o.Delay) / float64(time.Millisecond), true
}
