package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
)

// CreateParams describes a newly accepted submission.
type CreateParams struct {
	Kind     string
	Priority int
	UserID   *uuid.UUID
	InputRef string
	Metadata map[string]any
}

// Repository persists task records. Implementations must make
// FinishIfActive atomic: of several concurrent calls for the same task, at
// most one reports applied.
type Repository interface {
	// Create stores a pending record for an accepted submission.
	Create(ctx context.Context, params CreateParams) (*domain.TaskRecord, error)

	// Get returns the record with the given id, or an error wrapping
	// store.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error)

	// Update applies a partial update to an active record. Terminal records
	// are left untouched and no error is returned.
	Update(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) error

	// FinishIfActive applies upd only if the record is not yet terminal and
	// reports whether it did.
	FinishIfActive(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) (bool, error)

	// FindByExternalID looks up the record of the given kind carrying a
	// provider job id. It returns an error wrapping store.ErrNotFound when
	// there is none.
	FindByExternalID(ctx context.Context, kind, externalID string) (*domain.TaskRecord, error)

	// ListActive returns pending and processing records, oldest first.
	ListActive(ctx context.Context) ([]*domain.TaskRecord, error)

	// ListStale returns processing records not updated within olderThan.
	ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.TaskRecord, error)
}
