package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/health"
	"github.com/doridoridoriand/connwatch/internal/ping"
)

// Aggregator is the single owner of every health window. Outcomes reach it
// only through the channel passed to Run; readers see published snapshots.
type Aggregator struct {
	thresholds health.Thresholds
	logger     *zap.Logger
	now        func() time.Time

	// Owned by the consumer goroutine.
	index   map[string]int
	windows []*health.Window
	current []TargetStatus
	seq     uint64

	latest  atomic.Pointer[Snapshot]
	dropped atomic.Uint64

	mu     sync.Mutex
	subs   []chan Snapshot
	closed bool
}

// NewAggregator registers targets with an empty window each.
func NewAggregator(targets []config.TargetConfig, thresholds health.Thresholds, windowSize int, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windowSize <= 0 {
		windowSize = health.DefaultWindowSize
	}
	a := &Aggregator{
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
		index:      make(map[string]int, len(targets)),
		windows:    make([]*health.Window, len(targets)),
		current:    make([]TargetStatus, len(targets)),
	}
	empty := health.Classify(nil, thresholds)
	for i, tgt := range targets {
		a.index[tgt.Name] = i
		a.windows[i] = health.NewWindow(windowSize)
		a.current[i] = TargetStatus{
			Name:           tgt.Name,
			Address:        tgt.Address,
			Group:          tgt.Group,
			Classification: empty,
			WindowSize:     windowSize,
		}
	}
	return a
}

// Run drains in until ctx is cancelled or in is closed. Subscriber channels
// are closed on return.
func (a *Aggregator) Run(ctx context.Context, in <-chan ping.Outcome) error {
	defer a.closeSubscribers()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-in:
			if !ok {
				return nil
			}
			a.safeApply(out)
		}
	}
}

func (a *Aggregator) safeApply(out ping.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			a.dropped.Add(1)
			a.logger.Error("aggregator recovered from panic", zap.String("target", out.Target), zap.Any("panic", r))
		}
	}()
	if snap, ok := a.apply(out); ok {
		a.publish(snap)
	}
}

// apply folds one outcome into its target's window. It returns false when
// the outcome is dropped.
func (a *Aggregator) apply(out ping.Outcome) (Snapshot, bool) {
	idx, ok := a.index[out.Target]
	if !ok {
		a.dropped.Add(1)
		a.logger.Warn("dropping outcome for unknown target", zap.String("target", out.Target), zap.String("address", out.Address))
		return Snapshot{}, false
	}
	prev := a.current[idx]
	if out.ObservedAt.Before(prev.LastObservedAt) {
		a.dropped.Add(1)
		a.logger.Warn("dropping out-of-order outcome",
			zap.String("target", out.Target),
			zap.Time("observed_at", out.ObservedAt),
			zap.Time("last_observed_at", prev.LastObservedAt),
		)
		return Snapshot{}, false
	}

	w := a.windows[idx]
	w.Push(out)
	next := prev
	next.Window = w.Outcomes()
	next.Classification = health.Classify(next.Window, a.thresholds)
	next.LastStatus = out.Status
	next.LastDelay, next.HasLastDelay = out.Delay, out.HasDelay
	next.LastObservedAt = out.ObservedAt
	next.Counts.add(out.Status)
	a.current[idx] = next

	a.logOutcome(out, next)
	if prev.Classification.Link != next.Classification.Link {
		a.logger.Info("target connectivity changed",
			zap.String("target", next.Name),
			zap.String("from", string(prev.Classification.Link)),
			zap.String("to", string(next.Classification.Link)),
		)
	}

	a.seq++
	targets := make([]TargetStatus, len(a.current))
	copy(targets, a.current)
	links := make([]health.Link, len(targets))
	for i, t := range targets {
		links[i] = t.Classification.Link
	}
	return Snapshot{
		Seq:     a.seq,
		At:      a.now(),
		Overall: health.Overall(links),
		Targets: targets,
	}, true
}

func (a *Aggregator) logOutcome(out ping.Outcome, status TargetStatus) {
	c := status.Classification
	delay, hasDelay := out.DelayMillis()
	agg, hasAgg := c.AggregateDelayMillis()
	fields := []zap.Field{
		zap.String("target", out.Target),
		zap.String("address", out.Address),
		zap.String("status", string(out.Status)),
		optionalMillis("delay_ms", delay, hasDelay),
		zap.String("condition", string(c.Condition)),
		optionalMillis("aggregate_delay_ms", agg, hasAgg),
		zap.String("failures", fmt.Sprintf("%d/%d", c.FailureCount, status.WindowSize)),
		zap.Time("observed_at", out.ObservedAt),
	}
	level := zapcore.InfoLevel
	if out.Status.Failure() {
		level = zapcore.WarnLevel
		if out.Err != nil {
			fields = append(fields, zap.Error(out.Err))
		}
	}
	a.logger.Log(level, "probe outcome", fields...)
}

func optionalMillis(key string, value float64, ok bool) zap.Field {
	if !ok {
		return zap.Any(key, nil)
	}
	return zap.Float64(key, value)
}

func (a *Aggregator) publish(snap Snapshot) {
	a.latest.Store(&snap)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ch := range a.subs {
		offer(ch, snap)
	}
}

// offer replaces any undrained snapshot with snap. Only the consumer
// goroutine sends, so the newest snapshot always ends up buffered.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Latest returns the most recently published snapshot.
func (a *Aggregator) Latest() (Snapshot, bool) {
	snap := a.latest.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return *snap, true
}

// Subscribe returns a channel that receives published snapshots. Slow
// readers skip intermediate snapshots but never observe an older one after a
// newer one.
func (a *Aggregator) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		close(ch)
		return ch
	}
	if snap := a.latest.Load(); snap != nil {
		ch <- *snap
	}
	a.subs = append(a.subs, ch)
	return ch
}

// Dropped returns the number of outcomes rejected so far.
func (a *Aggregator) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *Aggregator) closeSubscribers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for _, ch := range a.subs {
		close(ch)
	}
	a.subs = nil
}
