package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/ping"
)

// Prober measures a target once.
type Prober interface {
	Probe(ctx context.Context, target config.TargetConfig) ping.Outcome
}

// Impl runs one independent probe loop per target and feeds every outcome
// into a shared sink.
type Impl struct {
	mu      sync.Mutex
	running bool
	targets []config.TargetConfig
	prober  Prober
	cadence time.Duration
	sink    chan<- ping.Outcome
	logger  *zap.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewScheduler constructs a scheduler. Sends on sink block rather than drop,
// so the consumer controls back-pressure.
func NewScheduler(targets []config.TargetConfig, prober Prober, cadence time.Duration, sink chan<- ping.Outcome, logger *zap.Logger) *Impl {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cadence <= 0 {
		cadence = time.Second
	}
	return &Impl{
		targets: append([]config.TargetConfig(nil), targets...),
		prober:  prober,
		cadence: cadence,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Run starts the probe loops and blocks until ctx is cancelled and every
// loop has returned.
func (s *Impl) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", zap.Int("targets", len(s.targets)), zap.Duration("cadence", s.cadence))
	for _, tgt := range s.targets {
		s.wg.Add(1)
		go func(target config.TargetConfig) {
			defer s.wg.Done()
			s.runTargetLoop(ctx, target)
		}(tgt)
	}

	<-ctx.Done()
	s.wg.Wait()
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// runTargetLoop probes immediately, then waits cadence after each delivery.
// Shutdown is checked between iterations; an in-flight probe runs to its own
// timeout.
func (s *Impl) runTargetLoop(ctx context.Context, target config.TargetConfig) {
	for {
		if ctx.Err() != nil {
			return
		}

		out := s.prober.Probe(context.WithoutCancel(ctx), target)
		out.ObservedAt = s.now()

		select {
		case s.sink <- out:
		case <-ctx.Done():
			return
		}

		timer := time.NewTimer(s.cadence)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
