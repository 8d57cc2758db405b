package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Sink receives engine events.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured log, the console equivalent of a
// desktop notification.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("id", ev.ID.String()),
		zap.String("type", string(ev.Type)),
		zap.String("overall", string(ev.Overall)),
		zap.Time("timestamp", ev.Timestamp),
	}
	if len(ev.Down) > 0 {
		fields = append(fields, zap.Strings("down", ev.Down))
	}
	if ev.Type == EventRecovery {
		s.logger.Info(ev.Title(), fields...)
		return nil
	}
	s.logger.Warn(ev.Title(), fields...)
	return nil
}
