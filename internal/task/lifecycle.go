package task

import (
	"context"
	"fmt"

	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/robfig/cron/v3"
)

// Start recovers unfinished tasks from the repository, starts the retry
// loop and the stale sweep, and dispatches. Processing records with an
// external id resume under a watcher; every other active record goes back
// to the pending queue.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return fmt.Errorf("engine already started or stopped")
	}
	e.mu.Unlock()

	var sweeper *cron.Cron
	if e.cfg.SweepSchedule != "" {
		sweeper = cron.New()
		if _, err := sweeper.AddFunc(e.cfg.SweepSchedule, e.sweepStale); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", e.cfg.SweepSchedule, err)
		}
	}

	if err := e.recover(ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	if sweeper != nil {
		e.cron = sweeper
		sweeper.Start()
	}

	e.mu.Lock()
	e.started = true
	e.wg.Go(e.retryLoop)
	e.dispatchLocked()
	e.mu.Unlock()

	e.logger.Info("task engine started",
		"max_concurrency", e.cfg.MaxConcurrency,
		"kinds", e.kinds.Names())
	return nil
}

func (e *Engine) recover(ctx context.Context) error {
	records, err := e.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active tasks: %w", err)
	}

	var resumed, requeued int
	for _, rec := range records {
		log := e.logger.With("task_id", rec.ID, "kind", rec.Kind)

		kind, ok := e.kinds.Get(rec.Kind)
		if !ok {
			log.Error("recovered task has an unregistered kind")
			if _, err := e.applyTerminal(ctx, rec.ID, domain.TaskStatusFailed, nil, ErrUnknownKind.Error()); err != nil {
				log.Error("failed to fail unrecoverable task", "error", err)
			}
			continue
		}
		metadata, err := rec.DecodeMetadata()
		if err != nil {
			log.Error("recovered task has unreadable metadata", "error", err)
			if _, err := e.applyTerminal(ctx, rec.ID, domain.TaskStatusFailed, nil, ErrInvalidMetadata.Error()); err != nil {
				log.Error("failed to fail unrecoverable task", "error", err)
			}
			continue
		}

		item := newQueueItem(rec, kind, metadata, rec.CreatedAt)

		if rec.Status == domain.TaskStatusProcessing && item.ExternalID != "" {
			e.mu.Lock()
			item.Status = ItemRunning
			e.running[item.TaskID] = item
			e.startWatcherLocked(item, item.ExternalID)
			e.mu.Unlock()
			resumed++
			continue
		}

		if rec.Status != domain.TaskStatusPending {
			if err := e.repo.Update(ctx, rec.ID, domain.StatusUpdate(domain.TaskStatusPending)); err != nil {
				log.Error("failed to reset interrupted task", "error", err)
				continue
			}
		}
		e.mu.Lock()
		e.pending = append(e.pending, item)
		e.mu.Unlock()
		requeued++
	}

	e.mu.Lock()
	sortPending(e.pending)
	e.mu.Unlock()

	e.logger.Info("recovered unfinished tasks",
		"resumed_count", resumed,
		"requeued_count", requeued)
	return nil
}

// sweepStale attaches watchers to processing tasks that have a provider job
// but no live watcher, e.g. after a watcher exited on an unexpected error.
// A task that would exceed MaxConcurrency waits for a later sweep.
func (e *Engine) sweepStale() {
	ctx := e.ctx
	records, err := e.repo.ListStale(ctx, e.cfg.StaleAfter)
	if err != nil {
		e.logger.Error("failed to check for stale tasks", "error", err)
		return
	}

	var attached, deferred int
	for _, rec := range records {
		if rec.ExternalID == nil {
			continue
		}
		kind, ok := e.kinds.Get(rec.Kind)
		if !ok {
			continue
		}

		e.mu.Lock()
		if e.stopped {
			e.mu.Unlock()
			return
		}
		if _, watched := e.watchers[*rec.ExternalID]; watched {
			e.mu.Unlock()
			continue
		}
		item, ok := e.running[rec.ID]
		if !ok {
			if len(e.running) >= e.cfg.MaxConcurrency {
				e.mu.Unlock()
				deferred++
				continue
			}
			metadata, err := rec.DecodeMetadata()
			if err != nil {
				e.mu.Unlock()
				continue
			}
			item = newQueueItem(rec, kind, metadata, rec.CreatedAt)
			item.Status = ItemRunning
			e.running[rec.ID] = item
		}
		item.setExternalID(*rec.ExternalID)
		e.startWatcherLocked(item, *rec.ExternalID)
		e.mu.Unlock()
		attached++
	}

	if attached > 0 {
		e.logger.Info("re-attached watchers to stale tasks", "count", attached)
	}
	if deferred > 0 {
		e.logger.Warn("stale tasks left for a later sweep, no free slot", "count", deferred)
	}
}

// Stop halts the engine: no new launches, watchers and the retry loop are
// cancelled, and Stop waits for every engine goroutine to return. Records
// of unfinished tasks are left as they are for the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for id := range e.watchers {
		e.stopWatcherLocked(id)
	}
	e.mu.Unlock()

	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
	e.cancel()

	if r := e.wg.WaitAndRecover(); r != nil {
		e.logger.Error("engine goroutine panicked", "error", r.AsError())
	}
	e.logger.Info("task engine stopped")
}
