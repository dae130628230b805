package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// InMemoryEventEmitter stores registered handlers in memory and dispatches
// events to them synchronously, in registration order.
type InMemoryEventEmitter struct {
	handlers []EventHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		handlers: make([]EventHandler, 0),
		logger:   logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a new event handler to receive events.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))
}

// EmitEvent publishes the given event to all registered handlers.
// A failing handler does not stop delivery to the others; every handler
// error is returned, combined.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskFinishedEvent) error {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	e.logger.Debug("emitting event",
		"event_id", event.ID,
		"task_id", event.TaskID,
		"status", event.Status,
		"handler_count", len(handlers))

	var result *multierror.Error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"task_id", event.TaskID)
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// UsageLogHandler records every finished task as a structured usage line.
// Billing consumes these lines downstream; failed tasks are logged with
// billable=false.
type UsageLogHandler struct {
	logger *slog.Logger
}

// NewUsageLogHandler creates a UsageLogHandler.
func NewUsageLogHandler(logger *slog.Logger) *UsageLogHandler {
	return &UsageLogHandler{logger: logger.With("component", "usage")}
}

// HandleEvent implements EventHandler.
func (h *UsageLogHandler) HandleEvent(ctx context.Context, event *TaskFinishedEvent) error {
	attrs := []any{
		"task_id", event.TaskID,
		"kind", event.Kind,
		"status", event.Status,
		"billable", event.Succeeded(),
		"finished_at", event.FinishedAt,
	}
	if event.UserID != nil {
		attrs = append(attrs, "user_id", *event.UserID)
	}
	h.logger.InfoContext(ctx, "task usage recorded", attrs...)
	return nil
}
