package task

import (
	"context"
	"time"

	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/processing"
)

// watchHandle identifies the single live watcher for an external id.
type watchHandle struct {
	externalID string
	cancel     context.CancelFunc
	startedAt  time.Time
}

// startWatcher attaches a status watcher to a launched item unless the item
// lost its slot in the meantime.
func (e *Engine) startWatcher(item *QueueItem, externalID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.running[item.TaskID] != item {
		return
	}
	e.startWatcherLocked(item, externalID)
}

// startWatcherLocked replaces any watcher already registered for externalID.
func (e *Engine) startWatcherLocked(item *QueueItem, externalID string) {
	e.stopWatcherLocked(externalID)

	ctx, cancel := context.WithCancel(e.ctx)
	h := &watchHandle{
		externalID: externalID,
		cancel:     cancel,
		startedAt:  e.clock.Now(),
	}
	e.watchers[externalID] = h
	e.wg.Go(func() {
		defer e.forgetWatcher(h)
		e.watch(ctx, h, item)
	})
}

func (e *Engine) stopWatcherLocked(externalID string) {
	if h, ok := e.watchers[externalID]; ok {
		h.cancel()
		delete(e.watchers, externalID)
	}
}

func (e *Engine) forgetWatcher(h *watchHandle) {
	h.cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watchers[h.externalID] == h {
		delete(e.watchers, h.externalID)
	}
}

// watch polls the provider immediately and then every PollInterval until
// the job reaches a terminal state, the watch times out, or ctx is
// cancelled by a competing reconciliation.
func (e *Engine) watch(ctx context.Context, h *watchHandle, item *QueueItem) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var lastWritten domain.TaskStatus
	for {
		if e.pollOnce(ctx, h, item, &lastWritten) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce performs one watcher tick and reports whether the watcher is done.
func (e *Engine) pollOnce(ctx context.Context, h *watchHandle, item *QueueItem, lastWritten *domain.TaskStatus) bool {
	log := e.logger.With("task_id", item.TaskID, "kind", item.Kind.Name(), "external_id", h.externalID)

	if ctx.Err() != nil {
		return true
	}

	if elapsed := e.clock.Now().Sub(h.startedAt); elapsed > e.cfg.WatchTimeout {
		log.Warn("status watch timed out", "elapsed", elapsed.String())
		return e.finishFailed(item, ErrWatchTimeout.Error())
	}

	report, err := item.Kind.Client().GetStatus(ctx, h.externalID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		log.Warn("status poll failed", "error", err)
		return false
	}

	switch processing.Classify(report.Status) {
	case processing.CanonicalQueued, processing.CanonicalProcessing:
		if *lastWritten != domain.TaskStatusProcessing {
			if err := e.repo.Update(ctx, item.TaskID, domain.StatusUpdate(domain.TaskStatusProcessing)); err != nil {
				log.Warn("failed to write processing status", "error", err)
				return false
			}
			*lastWritten = domain.TaskStatusProcessing
		}
		return false

	case processing.CanonicalFailed:
		msg := report.Error
		if msg == "" {
			msg = "provider reported status " + report.Status
		}
		log.Info("provider reported failure", "provider_status", report.Status)
		return e.finishFailed(item, msg)

	case processing.CanonicalSucceeded:
		if ctx.Err() != nil {
			return true
		}
		stillRunning, err := e.finalizeSuccess(e.ctx, item)
		if err != nil {
			log.Error("failed to record task success, will retry", "error", err)
			return false
		}
		if stillRunning {
			log.Debug("provider reported success before the result was ready")
			return false
		}
		e.release(item, ItemCompleted)
		return true

	default:
		log.Warn("unrecognized provider status", "provider_status", report.Status)
		return false
	}
}

// finishFailed records a failure for a running item and frees its slot. It
// reports whether the record was written; on a write error the item keeps
// its slot and the watcher tries again on the next tick.
func (e *Engine) finishFailed(item *QueueItem, msg string) bool {
	if _, err := e.applyTerminal(e.ctx, item.TaskID, domain.TaskStatusFailed, nil, msg); err != nil {
		e.logger.Error("failed to record task failure, will retry", "task_id", item.TaskID, "error", err)
		return false
	}
	e.release(item, ItemFailed)
	return true
}
