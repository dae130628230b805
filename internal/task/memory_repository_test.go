package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRecord(t *testing.T, repo *MemoryRepository, kind string) *domain.TaskRecord {
	t.Helper()
	rec, err := repo.Create(context.Background(), CreateParams{
		Kind:     kind,
		Metadata: map[string]any{"prompt": "x"},
	})
	require.NoError(t, err)
	return rec
}

func TestMemoryRepository_CreateGetUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryRepository()

	rec := createRecord(t, repo, KindVideoGenerate)
	assert.Equal(t, domain.TaskStatusPending, rec.Status)

	ext := "op-1"
	require.NoError(t, repo.Update(ctx, rec.ID, domain.TaskUpdate{
		Status:     statusPtr(domain.TaskStatusProcessing),
		ExternalID: &ext,
	}))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
	assert.Equal(t, "op-1", *got.ExternalID)

	// Returned records are copies.
	*got.ExternalID = "mutated"
	again, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "op-1", *again.ExternalID)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, uuid.New(), domain.TaskUpdate{}), store.ErrNotFound)
}

func TestMemoryRepository_CreateRejectsInvalid(t *testing.T) {
	t.Parallel()
	_, err := NewMemoryRepository().Create(context.Background(), CreateParams{})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestMemoryRepository_UpdateLeavesTerminalRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryRepository()
	rec := createRecord(t, repo, KindImageUpscale)

	applied, err := repo.FinishIfActive(ctx, rec.ID, domain.StatusUpdate(domain.TaskStatusFailed))
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, repo.Update(ctx, rec.ID, domain.StatusUpdate(domain.TaskStatusProcessing)))
	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
}

func TestMemoryRepository_FinishIfActiveFirstWriterWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryRepository()
	rec := createRecord(t, repo, KindImageUpscale)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := domain.TaskStatusSucceeded
			if i%2 == 1 {
				status = domain.TaskStatusFailed
			}
			applied, err := repo.FinishIfActive(ctx, rec.ID, domain.StatusUpdate(status))
			assert.NoError(t, err)
			if applied {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	_, err := repo.FinishIfActive(ctx, uuid.New(), domain.StatusUpdate(domain.TaskStatusFailed))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryRepository_ExternalIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryRepository()

	a := createRecord(t, repo, KindImageUpscale)
	b := createRecord(t, repo, KindImageUpscale)
	c := createRecord(t, repo, KindVideoEnhance)

	ext := "pred-123"
	require.NoError(t, repo.Update(ctx, a.ID, domain.TaskUpdate{ExternalID: &ext}))

	err := repo.Update(ctx, b.ID, domain.TaskUpdate{ExternalID: &ext})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// The same job id under another kind is a different job.
	require.NoError(t, repo.Update(ctx, c.ID, domain.TaskUpdate{ExternalID: &ext}))

	found, err := repo.FindByExternalID(ctx, KindImageUpscale, ext)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	found, err = repo.FindByExternalID(ctx, KindVideoEnhance, ext)
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)

	_, err = repo.FindByExternalID(ctx, KindVideoGenerate, ext)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryRepository_ListActiveAndStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryRepository()

	old := seedRecord(t, repo, KindImageUpscale, domain.TaskStatusProcessing, "job-old", time.Hour)
	fresh := seedRecord(t, repo, KindImageUpscale, domain.TaskStatusProcessing, "job-fresh", 0)
	queued := seedRecord(t, repo, KindImageUpscale, domain.TaskStatusPending, "", 2*time.Hour)
	seedRecord(t, repo, KindImageUpscale, domain.TaskStatusSucceeded, "job-done", 3*time.Hour)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, queued.ID, active[0].ID, "oldest first")
	assert.Equal(t, old.ID, active[1].ID)
	assert.Equal(t, fresh.ID, active[2].ID)

	stale, err := repo.ListStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

func statusPtr(s domain.TaskStatus) *domain.TaskStatus {
	return &s
}
