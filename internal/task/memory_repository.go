package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/store"
)

// MemoryRepository is a mutex-guarded in-process Repository. It backs the
// memory database driver and the engine tests. The exported function fields
// default to the in-memory behavior and can be replaced to inject faults.
type MemoryRepository struct {
	mutex   sync.RWMutex
	records map[uuid.UUID]*domain.TaskRecord

	CreateFn         func(ctx context.Context, params CreateParams) (*domain.TaskRecord, error)
	UpdateFn         func(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) error
	FinishIfActiveFn func(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) (bool, error)
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty MemoryRepository with default behavior.
func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{
		records: make(map[uuid.UUID]*domain.TaskRecord),
	}

	r.CreateFn = func(ctx context.Context, params CreateParams) (*domain.TaskRecord, error) {
		rec, err := domain.NewTaskRecord(params.Kind, params.Priority, params.UserID, params.InputRef, params.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		r.Put(rec)
		return copyRecord(rec), nil
	}

	r.UpdateFn = func(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) error {
		r.mutex.Lock()
		defer r.mutex.Unlock()

		rec, ok := r.records[id]
		if !ok {
			return store.ErrTaskNotFound
		}
		if rec.Status.IsTerminal() {
			return nil
		}
		if err := r.checkExternalIDLocked(id, upd); err != nil {
			return err
		}
		upd.Apply(rec)
		return nil
	}

	r.FinishIfActiveFn = func(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) (bool, error) {
		r.mutex.Lock()
		defer r.mutex.Unlock()

		rec, ok := r.records[id]
		if !ok {
			return false, store.ErrTaskNotFound
		}
		if rec.Status.IsTerminal() {
			return false, nil
		}
		upd.Apply(rec)
		return true, nil
	}

	return r
}

// Put stores a copy of rec, replacing any record with the same id.
func (r *MemoryRepository) Put(rec *domain.TaskRecord) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.records[rec.ID] = copyRecord(rec)
}

// Records returns copies of every stored record, oldest first.
func (r *MemoryRepository) Records() []*domain.TaskRecord {
	return r.filter(func(*domain.TaskRecord) bool { return true })
}

// Create implements Repository.
func (r *MemoryRepository) Create(ctx context.Context, params CreateParams) (*domain.TaskRecord, error) {
	return r.CreateFn(ctx, params)
}

// Get implements Repository.
func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return copyRecord(rec), nil
}

// Update implements Repository.
func (r *MemoryRepository) Update(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) error {
	return r.UpdateFn(ctx, id, upd)
}

// FinishIfActive implements Repository.
func (r *MemoryRepository) FinishIfActive(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) (bool, error) {
	return r.FinishIfActiveFn(ctx, id, upd)
}

// FindByExternalID implements Repository.
func (r *MemoryRepository) FindByExternalID(ctx context.Context, kind, externalID string) (*domain.TaskRecord, error) {
	found := r.filter(func(rec *domain.TaskRecord) bool {
		return rec.Kind == kind && rec.ExternalID != nil && *rec.ExternalID == externalID
	})
	if len(found) == 0 {
		return nil, store.ErrTaskNotFound
	}
	return found[0], nil
}

// ListActive implements Repository.
func (r *MemoryRepository) ListActive(ctx context.Context) ([]*domain.TaskRecord, error) {
	return r.filter(func(rec *domain.TaskRecord) bool {
		return !rec.Status.IsTerminal()
	}), nil
}

// ListStale implements Repository.
func (r *MemoryRepository) ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.TaskRecord, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	return r.filter(func(rec *domain.TaskRecord) bool {
		return rec.Status == domain.TaskStatusProcessing && rec.UpdatedAt.Before(cutoff)
	}), nil
}

func (r *MemoryRepository) checkExternalIDLocked(id uuid.UUID, upd domain.TaskUpdate) error {
	if upd.ExternalID == nil {
		return nil
	}
	target := r.records[id]
	for otherID, other := range r.records {
		if otherID != id && other.Kind == target.Kind && other.ExternalID != nil && *other.ExternalID == *upd.ExternalID {
			return store.ErrDuplicateExternalID
		}
	}
	return nil
}

func (r *MemoryRepository) filter(keep func(*domain.TaskRecord) bool) []*domain.TaskRecord {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*domain.TaskRecord, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func copyRecord(rec *domain.TaskRecord) *domain.TaskRecord {
	c := *rec
	if rec.UserID != nil {
		id := *rec.UserID
		c.UserID = &id
	}
	if rec.OutputRef != nil {
		ref := *rec.OutputRef
		c.OutputRef = &ref
	}
	if rec.ExternalID != nil {
		ext := *rec.ExternalID
		c.ExternalID = &ext
	}
	if rec.ErrorMsg != nil {
		msg := *rec.ErrorMsg
		c.ErrorMsg = &msg
	}
	if rec.Metadata != nil {
		c.Metadata = append([]byte(nil), rec.Metadata...)
	}
	return &c
}
