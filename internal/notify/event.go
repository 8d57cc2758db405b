package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doridoridoriand/connwatch/internal/health"
)

// EventType classifies a notification.
type EventType string

const (
	EventTransition EventType = "transition"
	EventRepeat     EventType = "repeat"
	EventRecovery   EventType = "recovery"
)

// Event is emitted by the engine and handed to a Sink.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"eventType"`
	Overall   health.Link `json:"overallStatus"`
	Timestamp time.Time   `json:"timestamp"`
	// Seq is the snapshot sequence the event was evaluated against.
	Seq uint64 `json:"seq,omitempty"`
	// Down lists the disconnected targets at evaluation time.
	Down []string `json:"down,omitempty"`
}

// Title is a one-line summary suitable for chat or toast notifications.
func (e Event) Title() string {
	switch e.Type {
	case EventRepeat:
		return "still disconnected"
	case EventRecovery:
		return "connectivity recovered"
	default:
		return fmt.Sprintf("status changed to %s", e.Overall)
	}
}

// Text is the notification body.
func (e Event) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall: %s\nAt: %s", e.Overall, e.Timestamp.Format(time.RFC3339))
	if len(e.Down) > 0 {
		fmt.Fprintf(&b, "\nDown: %s", strings.Join(e.Down, ", "))
	}
	return b.String()
}
