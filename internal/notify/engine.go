package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doridoridoriand/connwatch/internal/health"
	"github.com/doridoridoriand/connwatch/internal/state"
)

const deliveryQueueSize = 32

// Config tunes the engine.
type Config struct {
	PollInterval   time.Duration
	RepeatInterval time.Duration
	// AnnounceInitial emits a transition for the first observed status
	// instead of recording it silently as the baseline.
	AnnounceInitial bool
}

// Engine watches overall status and emits transition, repeat and recovery
// events. Evaluate is called only from Run's goroutine.
type Engine struct {
	source state.Source
	sink   Sink
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	previous      health.Link
	hasPrevious   bool
	lastEventTime time.Time

	queue chan Event
}

// NewEngine wires an engine to a snapshot source and a sink.
func NewEngine(source state.Source, sink Sink, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RepeatInterval <= 0 {
		cfg.RepeatInterval = 10 * time.Second
	}
	return &Engine{
		source: source,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		queue:  make(chan Event, deliveryQueueSize),
	}
}

// Run polls the source until ctx is cancelled. Deliveries happen on a
// separate goroutine so a slow sink never delays evaluation.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.deliverLoop(ctx)
	}()
	defer wg.Wait()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		e.poll()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) poll() {
	snap, ok := e.source.Latest()
	if !ok {
		return
	}
	ev, ok := e.Evaluate(e.now(), snap.Overall)
	if !ok {
		return
	}
	ev.Seq = snap.Seq
	ev.Down = downTargets(snap)
	e.logger.Info("notification event",
		zap.String("id", ev.ID.String()),
		zap.String("type", string(ev.Type)),
		zap.String("overall", string(ev.Overall)),
		zap.Strings("down", ev.Down),
	)

	select {
	case e.queue <- ev:
	default:
		e.logger.Warn("notification queue full, dropping event", zap.String("id", ev.ID.String()), zap.String("type", string(ev.Type)))
	}
}

func (e *Engine) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			if e.sink == nil {
				continue
			}
			if err := e.sink.Deliver(ctx, ev); err != nil {
				e.logger.Warn("notification delivery failed", zap.String("id", ev.ID.String()), zap.Error(err))
			}
		}
	}
}

// Evaluate applies the transition rules to the current overall status. At
// most one event is produced per call.
func (e *Engine) Evaluate(now time.Time, current health.Link) (Event, bool) {
	if !e.hasPrevious {
		e.previous, e.hasPrevious = current, true
		e.lastEventTime = now
		if !e.cfg.AnnounceInitial {
			return Event{}, false
		}
		return newEvent(EventTransition, current, now), true
	}

	if current != e.previous {
		kind := EventTransition
		if e.previous == health.LinkDisconnected && current == health.LinkConnected {
			kind = EventRecovery
		}
		e.previous = current
		e.lastEventTime = now
		return newEvent(kind, current, now), true
	}

	if current == health.LinkDisconnected && now.Sub(e.lastEventTime) >= e.cfg.RepeatInterval {
		e.lastEventTime = now
		return newEvent(EventRepeat, current, now), true
	}
	return Event{}, false
}

func newEvent(kind EventType, overall health.Link, now time.Time) Event {
	return Event{ID: uuid.New(), Type: kind, Overall: overall, Timestamp: now}
}

func downTargets(snap state.Snapshot) []string {
	var down []string
	for _, t := range snap.Targets {
		if t.Classification.Link == health.LinkDisconnected {
			down = append(down, t.Name)
		}
	}
	return down
}
