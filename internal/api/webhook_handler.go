package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/mediaforge-api/internal/api/shared"
	"github.com/phrazzld/mediaforge-api/internal/platform/logger"
	"github.com/phrazzld/mediaforge-api/internal/task"
	"github.com/spf13/cast"
)

// WebhookReconciler applies provider callbacks to tasks.
type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, ev task.WebhookEvent) (task.WebhookOutcome, error)
}

// WebhookHandler serves provider callbacks. Signatures are checked by
// middleware before it runs.
type WebhookHandler struct {
	reconciler WebhookReconciler
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler WebhookReconciler, logger *slog.Logger) *WebhookHandler {
	if reconciler == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("reconciler cannot be nil for WebhookHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for WebhookHandler")
	}
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "webhook_handler")),
	}
}

// HandleProviderWebhook handles POST /webhooks/provider. The payload names
// the event class and the provider job id; the rest of it is the status
// payload. Unknown job ids answer 404 so the provider redelivers.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid webhook payload", err)
		return
	}

	ev := task.WebhookEvent{
		Event:         firstField(payload, "event", "type"),
		ExternalID:    firstField(payload, "external_id", "id"),
		StatusPayload: payload,
	}
	if ev.Event == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Webhook event is required")
		return
	}

	outcome, err := h.reconciler.HandleWebhook(r.Context(), ev)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to process webhook")
		return
	}

	log.Debug("webhook processed",
		slog.String("event", ev.Event),
		slog.String("external_id", ev.ExternalID),
		slog.String("outcome", string(outcome)))
	shared.RespondWithJSON(w, r, http.StatusOK, WebhookResponse{Outcome: string(outcome)})
}

func firstField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(cast.ToString(m[k])); s != "" {
			return s
		}
	}
	return ""
}
