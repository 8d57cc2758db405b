package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/doridoridoriand/connwatch/internal/notify"
)

// EventCounter is a notify.Sink that counts emitted events.
type EventCounter struct {
	Events *prometheus.CounterVec
	// LastEvent holds the unix time of the most recent event per type.
	LastEvent *prometheus.GaugeVec
}

// NewEventCounter registers the event metrics on reg. A nil reg uses a
// private registry.
func NewEventCounter(reg prometheus.Registerer) *EventCounter {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &EventCounter{
		Events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Notification events by type and overall status.",
		}, []string{"type", "overall"}),
		LastEvent: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_event_timestamp_seconds",
			Help:      "Unix time of the most recent event per type.",
		}, []string{"type"}),
	}
}

func (c *EventCounter) Deliver(ctx context.Context, ev notify.Event) error {
	c.Events.WithLabelValues(string(ev.Type), string(ev.Overall)).Inc()
	c.LastEvent.WithLabelValues(string(ev.Type)).Set(float64(ev.Timestamp.UnixNano()) / 1e9)
	return nil
}
