package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskFinishedEvent is emitted once per task, when its record first reaches
// a terminal status.
type TaskFinishedEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	TaskID     uuid.UUID  `json:"task_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	ExternalID string     `json:"external_id,omitempty"`
	OutputRef  string     `json:"output_ref,omitempty"`
	ErrorMsg   string     `json:"error_msg,omitempty"`

	// FinishedAt is the timestamp when the terminal write happened
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the task finished successfully.
func (e *TaskFinishedEvent) Succeeded() bool {
	return e.Status == "succeeded"
}

// NewTaskFinishedEvent creates an event with a fresh id and the current time.
func NewTaskFinishedEvent(taskID uuid.UUID, kind, status string) *TaskFinishedEvent {
	return &TaskFinishedEvent{
		ID:         uuid.New(),
		TaskID:     taskID,
		Kind:       kind,
		Status:     status,
		FinishedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskFinishedEvent) error
}

// HandlerFunc adapts a plain function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskFinishedEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskFinishedEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the engine to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskFinishedEvent) error
}
