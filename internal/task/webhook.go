package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/processing"
	"github.com/phrazzld/mediaforge-api/internal/store"
	"github.com/spf13/cast"
)

// WebhookEvent is a provider callback about one job.
type WebhookEvent struct {
	Event         string
	ExternalID    string
	StatusPayload map[string]any
}

// WebhookOutcome tells the caller what HandleWebhook did.
type WebhookOutcome string

// Webhook outcomes
const (
	// WebhookIgnored: the event class does not end a job.
	WebhookIgnored WebhookOutcome = "ignored"
	// WebhookReconciled: the task's record reflects the reported outcome.
	WebhookReconciled WebhookOutcome = "reconciled"
	// WebhookDuplicate: the same delivery was reconciled recently.
	WebhookDuplicate WebhookOutcome = "duplicate"
	// WebhookDeferred: the provider reported success before the result was
	// ready; the status watcher will finish the task.
	WebhookDeferred WebhookOutcome = "deferred"
)

// HandleWebhook reconciles a provider callback with the task it concerns.
// It returns ErrTaskNotFound when no task carries the external id, so the
// provider can redeliver once the launcher has recorded it. A failed
// terminal write is returned as well and leaves the task running.
func (e *Engine) HandleWebhook(ctx context.Context, ev WebhookEvent) (WebhookOutcome, error) {
	if !processing.IsTerminalEvent(ev.Event) {
		return WebhookIgnored, nil
	}
	if ev.ExternalID == "" {
		return "", fmt.Errorf("%w: webhook carries no external id", ErrTaskNotFound)
	}

	deliveryKey := ev.ExternalID + "|" + strings.ToLower(ev.Event)
	if e.delivered.Contains(deliveryKey) {
		return WebhookDuplicate, nil
	}

	// Reconciliation outlives the delivery: a provider hanging up must not
	// abort relocation or the terminal write. ResultTimeout and
	// RelocationTimeout bound the work.
	work := context.WithoutCancel(ctx)

	item, err := e.locate(work, ev.ExternalID)
	if err != nil {
		return "", err
	}

	log := e.logger.With("task_id", item.TaskID, "kind", item.Kind.Name(), "external_id", ev.ExternalID, "event", ev.Event)
	status, errMsg := parseStatusPayload(ev)

	switch processing.Classify(status) {
	case processing.CanonicalSucceeded:
		stillRunning, err := e.finalizeSuccess(work, item)
		if err != nil {
			return "", err
		}
		if stillRunning {
			log.Info("webhook reported success before the result was ready")
			return WebhookDeferred, nil
		}
		e.delivered.Add(deliveryKey, struct{}{})
		e.release(item, ItemCompleted)

	case processing.CanonicalFailed:
		if errMsg == "" {
			errMsg = "provider reported status " + status
		}
		if _, err := e.applyTerminal(work, item.TaskID, domain.TaskStatusFailed, nil, errMsg); err != nil {
			return "", fmt.Errorf("record webhook failure: %w", err)
		}
		e.delivered.Add(deliveryKey, struct{}{})
		e.release(item, ItemFailed)

	default:
		log.Warn("terminal webhook without a terminal status", "provider_status", status)
		return WebhookIgnored, nil
	}

	log.Info("webhook reconciled", "provider_status", status)
	return WebhookReconciled, nil
}

// locate finds the task behind an external id: first in the records of
// every registered kind, then among running items whose id has not been
// written yet.
func (e *Engine) locate(ctx context.Context, externalID string) (*QueueItem, error) {
	for _, name := range e.kinds.Names() {
		rec, err := e.repo.FindByExternalID(ctx, name, externalID)
		if store.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find task by external id: %w", err)
		}

		e.mu.Lock()
		item, ok := e.running[rec.ID]
		e.mu.Unlock()
		if ok {
			return item, nil
		}

		kind, _ := e.kinds.Get(name)
		metadata, err := rec.DecodeMetadata()
		if err != nil {
			return nil, err
		}
		return newQueueItem(rec, kind, metadata, rec.CreatedAt), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, item := range e.running {
		if item.ExternalID == externalID {
			return item, nil
		}
	}
	return nil, fmt.Errorf("%w: external id %s", ErrTaskNotFound, externalID)
}

// parseStatusPayload extracts the provider status and error message from a
// webhook. Events that name their outcome stand in for a missing status.
func parseStatusPayload(ev WebhookEvent) (status, errMsg string) {
	p := ev.StatusPayload
	status = firstString(p, "status", "state")
	errMsg = firstString(p, "error", "message", "error_message")

	if status == "" {
		switch strings.ToLower(ev.Event) {
		case "job.succeeded", "job.completed":
			status = string(processing.CanonicalSucceeded)
		case "job.failed":
			status = string(processing.CanonicalFailed)
		case "job.cancelled", "job.canceled":
			status = "cancelled"
		}
	}
	return status, errMsg
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if s := firstString(nested, "message", "detail"); s != "" {
				return s
			}
			continue
		}
		if s := strings.TrimSpace(cast.ToString(v)); s != "" {
			return s
		}
	}
	return ""
}
