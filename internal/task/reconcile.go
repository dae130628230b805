package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/events"
	"github.com/phrazzld/mediaforge-api/internal/redact"
)

// applyTerminal is the only way a task record becomes terminal. It is
// idempotent: a record that is already terminal is left untouched and
// applied is false. The finished event is emitted once, by the caller whose
// write landed.
func (e *Engine) applyTerminal(
	ctx context.Context,
	taskID uuid.UUID,
	status domain.TaskStatus,
	outputRef *string,
	errMsg string,
) (bool, error) {
	rec, err := e.repo.Get(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("load task for terminal update: %w", err)
	}
	if rec.Status.IsTerminal() {
		e.logger.Debug("terminal update skipped",
			"task_id", taskID,
			"status", rec.Status,
			"attempted_status", status,
			"reason", ErrAlreadyTerminal)
		return false, nil
	}

	upd := domain.TaskUpdate{Status: &status, OutputRef: outputRef}
	if errMsg != "" {
		redacted := redact.String(errMsg)
		upd.ErrorMsg = &redacted
	}

	applied, err := e.repo.FinishIfActive(ctx, taskID, upd)
	if err != nil {
		return false, fmt.Errorf("finish task: %w", err)
	}
	if !applied {
		e.logger.Debug("terminal update lost the race",
			"task_id", taskID,
			"attempted_status", status,
			"reason", ErrAlreadyTerminal)
		return false, nil
	}

	e.logger.Info("task finished",
		"task_id", taskID,
		"kind", rec.Kind,
		"status", status,
		"has_output", outputRef != nil)

	e.emitFinished(ctx, rec, upd)
	return true, nil
}

func (e *Engine) emitFinished(ctx context.Context, rec *domain.TaskRecord, upd domain.TaskUpdate) {
	if e.emitter == nil {
		return
	}
	upd.Apply(rec)

	event := events.NewTaskFinishedEvent(rec.ID, rec.Kind, string(rec.Status))
	event.UserID = rec.UserID
	if rec.ExternalID != nil {
		event.ExternalID = *rec.ExternalID
	}
	if rec.OutputRef != nil {
		event.OutputRef = *rec.OutputRef
	}
	if rec.ErrorMsg != nil {
		event.ErrorMsg = *rec.ErrorMsg
	}

	if err := e.emitter.EmitEvent(ctx, event); err != nil {
		e.logger.Error("task finished event handlers failed", "task_id", rec.ID, "error", err)
	}
}

// finalizeSuccess materializes the result of a succeeded job and records
// the success. Concurrent calls for the same task share one execution, and
// a task that is already terminal is not materialized again. It reports
// whether the provider said the result is not ready yet, in which case
// nothing was written. A failed terminal write is returned; the caller must
// keep the item running so the success is recorded later.
func (e *Engine) finalizeSuccess(ctx context.Context, item *QueueItem) (bool, error) {
	v, err, _ := e.success.Do(item.TaskID.String(), func() (any, error) {
		rec, err := e.repo.Get(ctx, item.TaskID)
		if err == nil && rec.Status.IsTerminal() {
			return false, nil
		}

		outputRef, stillRunning := e.materialize(ctx, item)
		if stillRunning {
			return true, nil
		}
		if _, err := e.applyTerminal(ctx, item.TaskID, domain.TaskStatusSucceeded, outputRef, ""); err != nil {
			return false, fmt.Errorf("record task success: %w", err)
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	stillRunning, _ := v.(bool)
	return stillRunning, nil
}

// materialize fetches a finished job's artifact and copies it to durable
// storage. Failures are logged and yield a nil reference; they never fail
// the task.
func (e *Engine) materialize(ctx context.Context, item *QueueItem) (*string, bool) {
	log := e.logger.With("task_id", item.TaskID, "kind", item.Kind.Name(), "external_id", item.ExternalID)

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.ResultTimeout)
	result, err := item.Kind.Client().GetResult(fetchCtx, item.ExternalID)
	cancel()
	if err != nil {
		log.Error("result materialization failed",
			"error", &MaterializationError{Stage: StageFetch, ExternalID: item.ExternalID, Err: err})
		return nil, false
	}
	if result.StillRunning {
		return nil, true
	}
	if result.OutputRef == "" {
		log.Warn("provider returned no output reference")
		return nil, false
	}

	key := fmt.Sprintf("%s/%s-%s", item.Kind.ObjectPrefix(), item.TaskID, uuid.NewString()[:8])
	relocateCtx, cancel := context.WithTimeout(ctx, e.cfg.RelocationTimeout)
	durable, err := e.relocator.Relocate(relocateCtx, result.OutputRef, key)
	cancel()
	if err != nil {
		log.Error("result materialization failed",
			"error", &MaterializationError{Stage: StageRelocate, ExternalID: item.ExternalID, Err: err})
		return nil, false
	}

	log.Info("result relocated", "output_ref", durable)
	return &durable, false
}
