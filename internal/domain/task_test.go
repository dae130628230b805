package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskRecord(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	rec, err := NewTaskRecord("image_upscale", 2, &owner, "https://cdn.example.com/in.png", map[string]any{
		"input_url": "https://cdn.example.com/in.png",
		"scale":     4,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, TaskStatusPending, rec.Status)
	assert.Equal(t, 2, rec.Priority)
	assert.Nil(t, rec.ExternalID)
	assert.Nil(t, rec.OutputRef)
	assert.False(t, rec.CreatedAt.IsZero())

	meta, err := rec.DecodeMetadata()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/in.png", meta["input_url"])
	assert.EqualValues(t, 4, meta["scale"])
}

func TestNewTaskRecord_EmptyKind(t *testing.T) {
	t.Parallel()

	_, err := NewTaskRecord("", 0, nil, "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, ErrEmptyTaskKind))
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   TaskStatus
		terminal bool
		valid    bool
	}{
		{TaskStatusPending, false, true},
		{TaskStatusProcessing, false, true},
		{TaskStatusSucceeded, true, true},
		{TaskStatusFailed, true, true},
		{TaskStatus("completed"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.valid, tt.status.Valid())
		})
	}
}

func TestTerminalUpdate(t *testing.T) {
	t.Parallel()

	upd, err := TerminalUpdate(TaskStatusSucceeded, "https://storage.example.com/out.png", "")
	require.NoError(t, err)
	require.NotNil(t, upd.OutputRef)
	assert.Nil(t, upd.ErrorMsg)

	rec := &TaskRecord{ID: uuid.New(), Kind: "k", Status: TaskStatusProcessing}
	upd.Apply(rec)
	assert.Equal(t, TaskStatusSucceeded, rec.Status)
	assert.Equal(t, "https://storage.example.com/out.png", *rec.OutputRef)

	_, err = TerminalUpdate(TaskStatusProcessing, "", "")
	assert.ErrorIs(t, err, ErrInvalidTaskStatus)
}

func TestTaskRecord_OwnedBy(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	rec := &TaskRecord{UserID: &owner}
	assert.True(t, rec.OwnedBy(owner))
	assert.False(t, rec.OwnedBy(uuid.New()))

	anonymous := &TaskRecord{}
	assert.True(t, anonymous.OwnedBy(uuid.New()))
}
