package health

import (
	"time"

	"github.com/doridoridoriand/connwatch/internal/ping"
)

// Condition is the latency class of a target.
type Condition string

const (
	ConditionFast   Condition = "fast"
	ConditionSlow   Condition = "slow"
	ConditionDead   Condition = "dead"
	ConditionNoData Condition = "no-data"
)

// Link is the connectivity verdict for a target or for the whole system.
type Link string

const (
	LinkUnknown      Link = "unknown"
	LinkConnected    Link = "connected"
	LinkDisconnected Link = "disconnected"
)

// Thresholds configures classification.
type Thresholds struct {
	// Fast is the exclusive upper bound of the fast band.
	Fast time.Duration
	// Slow is the inclusive upper bound of the slow band.
	Slow time.Duration
	// FailureLimit is the failure count at which a target is disconnected.
	FailureLimit int
}

// DefaultThresholds returns the 200ms / 1500ms / 2 failures policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Fast:         200 * time.Millisecond,
		Slow:         1500 * time.Millisecond,
		FailureLimit: 2,
	}
}

// Classification is derived from a window's contents.
type Classification struct {
	Condition      Condition
	Link           Link
	AggregateDelay time.Duration
	HasDelay       bool
	FailureCount   int
	Samples        int
}

// AggregateDelayMillis returns the mean delay in milliseconds, if any sample exists.
func (c Classification) AggregateDelayMillis() (float64, bool) {
	if !c.HasDelay {
		return 0, false
	}
	return float64(c.AggregateDelay) / float64(time.Millisecond), true
}

// Classify is a pure function over outcomes. Failures dominate latency: once
// FailureLimit non-success outcomes are present the target is dead whatever
// the delays say.
func Classify(outcomes []ping.Outcome, th Thresholds) Classification {
	c := Classification{Samples: len(outcomes)}

	var sum time.Duration
	var delays int
	for _, o := range outcomes {
		if o.Status.Failure() {
			c.FailureCount++
		}
		if o.HasDelay {
			sum += o.Delay
			delays++
		}
	}
	if delays > 0 {
		c.AggregateDelay = sum / time.Duration(delays)
		c.HasDelay = true
	}

	limit := th.FailureLimit
	if limit <= 0 {
		limit = DefaultThresholds().FailureLimit
	}

	switch {
	case len(outcomes) > 0 && c.FailureCount >= limit:
		c.Condition, c.Link = ConditionDead, LinkDisconnected
	case !c.HasDelay:
		c.Condition, c.Link = ConditionNoData, LinkUnknown
	case c.AggregateDelay < th.Fast:
		c.Condition, c.Link = ConditionFast, LinkConnected
	case c.AggregateDelay <= th.Slow:
		c.Condition, c.Link = ConditionSlow, LinkConnected
	default:
		c.Condition, c.Link = ConditionDead, LinkDisconnected
	}
	return c
}

// Overall folds per-target links: any disconnected target disconnects the system.
func Overall(links []Link) Link {
	for _, l := range links {
		if l == LinkDisconnected {
			return LinkDisconnected
		}
	}
	return LinkConnected
}
