package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/api/shared"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/platform/logger"
	"github.com/phrazzld/mediaforge-api/internal/task"
)

// TaskEngine is the part of the task engine the HTTP layer drives.
type TaskEngine interface {
	Submit(ctx context.Context, req task.SubmitRequest) (task.SubmitResult, error)
	Get(ctx context.Context, taskID uuid.UUID) (*domain.TaskRecord, error)
	Cancel(ctx context.Context, taskID uuid.UUID) error
	Kinds() []string
	Snapshot() task.Snapshot
}

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	engine TaskEngine
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(engine TaskEngine, logger *slog.Logger) *TaskHandler {
	if engine == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("engine cannot be nil for TaskHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		engine: engine,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// SubmitTask handles POST /api/tasks.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := shared.UserID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	res, err := h.engine.Submit(r.Context(), task.SubmitRequest{
		Kind:     req.Kind,
		Priority: req.Priority,
		Owner:    &userID,
		Metadata: req.Metadata,
		InputRef: req.InputRef,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	log.Debug("task submitted",
		slog.String("task_id", res.TaskID.String()),
		slog.String("user_id", userID.String()),
		slog.Int("queue_position", res.QueuePosition))

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{
		TaskID:        res.TaskID,
		QueuePosition: res.QueuePosition,
	})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.ownedTask(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(rec))
}

// CancelTask handles POST /api/tasks/{id}/cancel and answers with the
// updated record.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	rec, ok := h.ownedTask(w, r)
	if !ok {
		return
	}

	if err := h.engine.Cancel(r.Context(), rec.ID); err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}
	log.Info("task cancelled by owner", slog.String("task_id", rec.ID.String()))

	updated, err := h.engine.Get(r.Context(), rec.ID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(updated))
}

// ListKinds handles GET /api/kinds.
func (h *TaskHandler) ListKinds(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, KindsResponse{Kinds: h.engine.Kinds()})
}

// QueueSnapshot handles GET /api/queue.
func (h *TaskHandler) QueueSnapshot(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.engine.Snapshot())
}

// ownedTask loads the task named in the path. Tasks of other users are
// reported as missing.
func (h *TaskHandler) ownedTask(w http.ResponseWriter, r *http.Request) (*domain.TaskRecord, bool) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return nil, false
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return nil, false
	}

	rec, err := h.engine.Get(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task")
		return nil, false
	}
	if !rec.OwnedBy(userID) {
		HandleAPIError(w, r, task.ErrTaskNotFound, "")
		return nil, false
	}
	return rec, true
}
