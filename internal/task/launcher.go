package task

import (
	"context"
	"errors"
	"time"

	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/processing"
)

const remoteCancelTimeout = 10 * time.Second

// launch submits a running item to its provider. Every await is followed by
// a check that the item still holds its slot, since Cancel may have removed
// it in the meantime.
func (e *Engine) launch(item *QueueItem) {
	ctx := e.ctx
	log := e.logger.With("task_id", item.TaskID, "kind", item.Kind.Name())

	if err := e.repo.Update(ctx, item.TaskID, domain.StatusUpdate(domain.TaskStatusProcessing)); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("failed to mark task processing", "error", err)
	}

	if !e.isRunning(item) {
		log.Debug("task left the running set before launch")
		return
	}

	spec, err := item.Kind.BuildJobSpec(item.Metadata)
	if err != nil {
		e.failLaunch(item, &FatalLaunchError{Err: err})
		return
	}
	spec.WebhookURL = e.cfg.WebhookURL

	externalID, err := item.Kind.Client().CreateJob(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if processing.IsTransient(err) {
			e.deferLaunch(item, err)
			return
		}
		e.failLaunch(item, &FatalLaunchError{Err: err})
		return
	}

	e.mu.Lock()
	stillRunning := e.running[item.TaskID] == item
	if stillRunning && !item.setExternalID(externalID) {
		log.Warn("refusing to replace external id",
			"external_id", item.ExternalID,
			"new_external_id", externalID)
	}
	e.mu.Unlock()

	if !stillRunning {
		log.Info("task cancelled while its job was being created, cancelling remote job",
			"external_id", externalID)
		e.cancelRemote(item.Kind, externalID)
		return
	}

	if err := e.repo.Update(ctx, item.TaskID, domain.TaskUpdate{ExternalID: &externalID}); err != nil {
		log.Error("failed to record external id", "external_id", externalID, "error", err)
	}

	log.Info("task launched", "external_id", externalID, "retries", item.Retries)
	e.startWatcher(item, externalID)
}

// failLaunch finalizes a task whose launch cannot succeed.
func (e *Engine) failLaunch(item *QueueItem, err error) {
	if !e.isRunning(item) {
		return
	}
	e.logger.Error("task launch failed",
		"task_id", item.TaskID,
		"kind", item.Kind.Name(),
		"error", err)

	if _, terr := e.applyTerminal(e.ctx, item.TaskID, domain.TaskStatusFailed, nil, err.Error()); terr != nil {
		e.logger.Error("failed to record launch failure", "task_id", item.TaskID, "error", terr)
	}
	e.release(item, ItemFailed)
}

// deferLaunch moves a capacity-rejected item to the waiting pool and frees
// its slot. Items over the retry budget are failed instead.
func (e *Engine) deferLaunch(item *QueueItem, cause error) {
	e.mu.Lock()
	if e.running[item.TaskID] != item {
		e.mu.Unlock()
		return
	}
	delete(e.running, item.TaskID)
	item.Retries++

	if e.cfg.MaxRetries > 0 && item.Retries > e.cfg.MaxRetries {
		item.Status = ItemFailed
		e.dispatchLocked()
		e.mu.Unlock()

		e.logger.Error("task retries exhausted",
			"task_id", item.TaskID,
			"kind", item.Kind.Name(),
			"retries", item.Retries-1,
			"error", cause)
		if _, err := e.applyTerminal(e.ctx, item.TaskID, domain.TaskStatusFailed, nil, ErrRetriesExhausted.Error()); err != nil {
			e.logger.Error("failed to record exhausted retries", "task_id", item.TaskID, "error", err)
		}
		return
	}

	item.NextAttemptAt = e.clock.Now().Add(e.cfg.RetryDelay)
	e.waiting.push(item)
	e.dispatchLocked()
	e.mu.Unlock()

	e.logger.Warn("provider at capacity, task will be retried",
		"task_id", item.TaskID,
		"kind", item.Kind.Name(),
		"retries", item.Retries,
		"next_attempt_at", item.NextAttemptAt,
		"error", cause)
	e.wakeRetryLoop()
}

func (e *Engine) wakeRetryLoop() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// retryLoop relaunches waiting items when they become due.
func (e *Engine) retryLoop() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.mu.Lock()
		next, ok := e.waiting.nextFireAt()
		e.mu.Unlock()

		var fire <-chan time.Time
		if ok {
			timer.Reset(max(next.Sub(e.clock.Now()), 0))
			fire = timer.C
		}

		select {
		case <-e.ctx.Done():
			return
		case <-e.wake:
			timer.Stop()
		case <-fire:
			e.relaunchDue()
		}
	}
}

// relaunchDue moves due waiting items back to the running set while slots
// are free. Due items without a slot are re-armed for another delay.
func (e *Engine) relaunchDue() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	now := e.clock.Now()
	available := e.cfg.MaxConcurrency - len(e.running)
	for _, item := range e.waiting.popDue(now) {
		if available > 0 {
			e.startLaunchLocked(item)
			available--
			continue
		}
		item.NextAttemptAt = now.Add(e.cfg.RetryDelay)
		e.waiting.push(item)
	}
}

// cancelRemote asks the provider to stop a job. Failures are only logged.
func (e *Engine) cancelRemote(kind Kind, externalID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), remoteCancelTimeout)
	defer cancel()

	ok, err := kind.Client().Cancel(ctx, externalID)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		e.logger.Warn("remote cancel failed", "kind", kind.Name(), "external_id", externalID, "error", err)
	case !ok:
		e.logger.Debug("remote cancel not applied", "kind", kind.Name(), "external_id", externalID)
	}
}
