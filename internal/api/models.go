package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
)

// SubmitTaskRequest is the payload of POST /api/tasks.
type SubmitTaskRequest struct {
	Kind     string         `json:"kind"      validate:"required"`
	Priority int            `json:"priority"  validate:"gte=0,lte=100"`
	InputRef string         `json:"input_ref" validate:"omitempty,url"`
	Metadata map[string]any `json:"metadata"`
}

// SubmitTaskResponse acknowledges an admitted task.
type SubmitTaskResponse struct {
	TaskID        uuid.UUID `json:"task_id"`
	QueuePosition int       `json:"queue_position"`
}

// TaskResponse is the client view of a task record.
type TaskResponse struct {
	ID        uuid.UUID         `json:"id"`
	Kind      string            `json:"kind"`
	Status    domain.TaskStatus `json:"status"`
	Priority  int               `json:"priority"`
	InputRef  string            `json:"input_ref,omitempty"`
	OutputRef *string           `json:"output_ref,omitempty"`
	Error     *string           `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// KindsResponse lists the job kinds accepted by POST /api/tasks.
type KindsResponse struct {
	Kinds []string `json:"kinds"`
}

// WebhookResponse reports what a provider callback changed.
type WebhookResponse struct {
	Outcome string `json:"outcome"`
}

func newTaskResponse(rec *domain.TaskRecord) TaskResponse {
	return TaskResponse{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Status:    rec.Status,
		Priority:  rec.Priority,
		InputRef:  rec.InputRef,
		OutputRef: rec.OutputRef,
		Error:     rec.ErrorMsg,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
