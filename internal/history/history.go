package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventRegistered EventType = "registered"
	EventCancelled  EventType = "cancelled"
	EventRetired    EventType = "retired"
	EventReaped     EventType = "reaped"
	EventShutdown   EventType = "shutdown"
)

// Task is the snapshot of a monitored task carried by an event.
type Task struct {
	PID      int32  `json:"pid"`
	C        int32  `json:"c_ms"`
	T        int32  `json:"t_ms"`
	Periods  uint64 `json:"periods"`
	Overruns uint64 `json:"overruns"`
	Reason   string `json:"reason,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Task       Task      `json:"task"`
}

// NewEvent stamps a fresh id and the current UTC time.
func NewEvent(typ EventType, t Task) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Task:       t,
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
