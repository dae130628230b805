package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/mediaforge-api/internal/platform/postgres"
	"github.com/phrazzld/mediaforge-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code, constraint string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		SchemaName:     "public",
		TableName:      "tasks",
		ColumnName:     "kind",
		ConstraintName: constraint,
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantIs  []error
		wantNil bool
		same    bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{
			name:   "no rows",
			err:    sql.ErrNoRows,
			wantIs: []error{store.ErrNotFound, store.ErrTaskNotFound},
		},
		{
			name:   "duplicate external id",
			err:    newPgError("23505", "tasks_kind_external_id_key"),
			wantIs: []error{store.ErrDuplicate, store.ErrDuplicateExternalID},
		},
		{
			name:   "other unique violation",
			err:    newPgError("23505", "tasks_pkey"),
			wantIs: []error{store.ErrDuplicate},
		},
		{
			name:   "check violation",
			err:    fmt.Errorf("insert: %w", newPgError("23514", "tasks_status_check")),
			wantIs: []error{store.ErrInvalidEntity},
		},
		{
			name:   "not null violation",
			err:    newPgError("23502", ""),
			wantIs: []error{store.ErrInvalidEntity},
		},
		{
			name: "unmapped",
			err:  errors.New("connection reset"),
			same: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := postgres.MapError(tt.err)
			if tt.wantNil {
				assert.NoError(t, got)
				return
			}
			if tt.same {
				assert.Equal(t, tt.err, got)
				return
			}
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, got, target)
			}
		})
	}
}

func TestMapError_ExternalIDIsNotPlainDuplicate(t *testing.T) {
	t.Parallel()

	got := postgres.MapError(newPgError("23505", "tasks_pkey"))
	assert.False(t, errors.Is(got, store.ErrDuplicateExternalID))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsUniqueViolation(newPgError("23505", "")))
	assert.True(t, postgres.IsUniqueViolation(fmt.Errorf("wrapped: %w", newPgError("23505", ""))))
	assert.False(t, postgres.IsUniqueViolation(newPgError("23514", "")))
	assert.False(t, postgres.IsUniqueViolation(nil))
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsNotFoundError(sql.ErrNoRows))
	assert.True(t, postgres.IsNotFoundError(store.ErrTaskNotFound))
	assert.True(t, postgres.IsNotFoundError(fmt.Errorf("get: %w", store.ErrNotFound)))
	assert.False(t, postgres.IsNotFoundError(errors.New("boom")))
}
