package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the canonical, user-visible status of a task record.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further status change is allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Valid reports whether s is one of the canonical statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusSucceeded, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// TaskRecord is the durable record of a submitted processing job. It is
// created when a submission is accepted and mutated by the launcher, the
// status watcher and the webhook reconciler. Once Status is terminal the
// record is never rewritten.
type TaskRecord struct {
	ID         uuid.UUID       `json:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	Kind       string          `json:"kind"`
	Status     TaskStatus      `json:"status"`
	Priority   int             `json:"priority"`
	InputRef   string          `json:"input_ref"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OutputRef  *string         `json:"output_ref,omitempty"`
	ExternalID *string         `json:"external_id,omitempty"`
	ErrorMsg   *string         `json:"error_msg,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewTaskRecord builds a pending record for a freshly accepted submission.
func NewTaskRecord(kind string, priority int, owner *uuid.UUID, inputRef string, metadata map[string]any) (*TaskRecord, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata is not serializable: %v", ErrValidation, err)
	}

	now := time.Now().UTC()
	rec := &TaskRecord{
		ID:        uuid.New(),
		UserID:    owner,
		Kind:      kind,
		Status:    TaskStatusPending,
		Priority:  priority,
		InputRef:  inputRef,
		Metadata:  raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks if the TaskRecord has valid data.
func (t *TaskRecord) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidID)
	}
	if t.Kind == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyTaskKind)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidTaskStatus, t.Status)
	}
	return nil
}

// DecodeMetadata returns the submission metadata as a map. A record without
// metadata yields an empty map.
func (t *TaskRecord) DecodeMetadata() (map[string]any, error) {
	out := map[string]any{}
	if len(t.Metadata) == 0 || string(t.Metadata) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(t.Metadata, &out); err != nil {
		return nil, fmt.Errorf("decode task metadata: %w", err)
	}
	return out, nil
}

// OwnedBy reports whether the record belongs to userID. Records without an
// owner are visible to every caller.
func (t *TaskRecord) OwnedBy(userID uuid.UUID) bool {
	return t.UserID == nil || *t.UserID == userID
}

// TaskUpdate is a partial update of a TaskRecord. Nil fields are left as they are.
type TaskUpdate struct {
	Status     *TaskStatus
	ExternalID *string
	OutputRef  *string
	ErrorMsg   *string
}

// Apply copies the non-nil fields of u onto t and bumps UpdatedAt.
func (u TaskUpdate) Apply(t *TaskRecord) {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.ExternalID != nil {
		id := *u.ExternalID
		t.ExternalID = &id
	}
	if u.OutputRef != nil {
		ref := *u.OutputRef
		t.OutputRef = &ref
	}
	if u.ErrorMsg != nil {
		msg := *u.ErrorMsg
		t.ErrorMsg = &msg
	}
	t.UpdatedAt = time.Now().UTC()
}

// StatusUpdate is shorthand for an update that only changes the status.
func StatusUpdate(status TaskStatus) TaskUpdate {
	return TaskUpdate{Status: &status}
}

// TerminalUpdate builds the single write that finalizes a task. Empty
// outputRef or errMsg leave the corresponding column untouched.
func TerminalUpdate(status TaskStatus, outputRef, errMsg string) (TaskUpdate, error) {
	if !status.IsTerminal() {
		return TaskUpdate{}, fmt.Errorf("%w: %q is not terminal", ErrInvalidTaskStatus, status)
	}
	upd := TaskUpdate{Status: &status}
	if outputRef != "" {
		upd.OutputRef = &outputRef
	}
	if errMsg != "" {
		upd.ErrorMsg = &errMsg
	}
	return upd, nil
}
