package state

import (
	"time"

	"github.com/doridoridoriand/connwatch/internal/health"
	"github.com/doridoridoriand/connwatch/internal/ping"
)

// Counts accumulates outcomes by status since startup.
type Counts struct {
	Success uint64
	Failed  uint64
	Timeout uint64
	Error   uint64
}

// Total returns the number of outcomes counted.
func (c Counts) Total() uint64 {
	return c.Success + c.Failed + c.Timeout + c.Error
}

func (c *Counts) add(status ping.Status) {
	switch status {
	case ping.StatusSuccess:
		c.Success++
	case ping.StatusFailed:
		c.Failed++
	case ping.StatusTimeout:
		c.Timeout++
	default:
		c.Error++
	}
}

// TargetStatus captures the current classification and recent history for a target.
type TargetStatus struct {
	Name    string
	Address string
	Group   string

	Classification health.Classification
	// Window holds the outcomes behind Classification, oldest first. It is
	// never mutated after publication.
	Window     []ping.Outcome
	WindowSize int

	LastStatus     ping.Status
	LastDelay      time.Duration
	HasLastDelay   bool
	LastObservedAt time.Time
	Counts         Counts
}

// Probed reports whether any outcome has been recorded for the target.
func (t TargetStatus) Probed() bool {
	return !t.LastObservedAt.IsZero()
}

// Snapshot is an immutable point-in-time view across all targets. Targets
// keep configuration order.
type Snapshot struct {
	Seq     uint64
	At      time.Time
	Overall health.Link
	Targets []TargetStatus
}

// Target looks up a target by name.
func (s Snapshot) Target(name string) (TargetStatus, bool) {
	for _, t := range s.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return TargetStatus{}, false
}

// Source exposes the most recently published snapshot.
type Source interface {
	// Latest returns false until the first outcome has been applied.
	Latest() (Snapshot, bool)
}
