package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/store"
)

// Cancel stops a task wherever it is. Pending and waiting tasks are removed
// before they reach a provider; running tasks lose their watcher, the
// provider is asked to stop the job, and the freed slot is dispatched. In
// every case the record ends failed with CancelledMessage.
func (e *Engine) Cancel(ctx context.Context, taskID uuid.UUID) error {
	e.mu.Lock()

	for i, item := range e.pending {
		if item.TaskID == taskID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			item.Status = ItemFailed
			e.mu.Unlock()
			return e.finishCancelled(ctx, item, "pending")
		}
	}

	if item, ok := e.waiting.remove(taskID); ok {
		item.Status = ItemFailed
		e.mu.Unlock()
		return e.finishCancelled(ctx, item, "waiting")
	}

	if item, ok := e.running[taskID]; ok {
		delete(e.running, taskID)
		item.Status = ItemFailed
		externalID := item.ExternalID
		if externalID != "" {
			e.stopWatcherLocked(externalID)
		}
		e.mu.Unlock()

		if externalID != "" {
			e.cancelRemote(item.Kind, externalID)
		}
		err := e.finishCancelled(ctx, item, "running")
		e.dispatch()
		return err
	}
	e.mu.Unlock()

	rec, err := e.repo.Get(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("get task: %w", err)
	}
	if rec.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	return ErrTaskNotFound
}

func (e *Engine) finishCancelled(ctx context.Context, item *QueueItem, from string) error {
	e.logger.InfoContext(ctx, "cancelling task",
		"task_id", item.TaskID,
		"kind", item.Kind.Name(),
		"from", from)

	if _, err := e.applyTerminal(ctx, item.TaskID, domain.TaskStatusFailed, nil, CancelledMessage); err != nil {
		return fmt.Errorf("record cancellation: %w", err)
	}
	return nil
}
