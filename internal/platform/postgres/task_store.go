package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/platform/logger"
	"github.com/phrazzld/mediaforge-api/internal/store"
	"github.com/phrazzld/mediaforge-api/internal/task"
)

const taskColumns = `id, user_id, kind, status, priority, input_ref, metadata,
	output_ref, external_id, error_msg, created_at, updated_at`

// PostgresTaskStore implements task.Repository on PostgreSQL.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a PostgresTaskStore over db. If logger is nil,
// the default logger is used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ task.Repository = (*PostgresTaskStore)(nil)

// Create implements task.Repository.
func (s *PostgresTaskStore) Create(ctx context.Context, params task.CreateParams) (*domain.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rec, err := domain.NewTaskRecord(params.Kind, params.Priority, params.UserID, params.InputRef, params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, user_id, kind, status, priority, input_ref, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		nullUUID(rec.UserID),
		rec.Kind,
		string(rec.Status),
		rec.Priority,
		rec.InputRef,
		[]byte(rec.Metadata),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("task_id", rec.ID.String()),
			slog.String("kind", rec.Kind),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	log.Debug("task created", slog.String("task_id", rec.ID.String()), slog.String("kind", rec.Kind))
	return rec, nil
}

// Get implements task.Repository.
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return rec, nil
}

// Update implements task.Repository.
func (s *PostgresTaskStore) Update(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) error {
	_, err := s.updateActive(ctx, "update", id, upd)
	return err
}

// FinishIfActive implements task.Repository. The status guard in the
// UPDATE makes concurrent finishes race on the row lock; only the first
// one matches.
func (s *PostgresTaskStore) FinishIfActive(ctx context.Context, id uuid.UUID, upd domain.TaskUpdate) (bool, error) {
	return s.updateActive(ctx, "finish", id, upd)
}

// updateActive applies upd to a record that is not terminal yet. Driver
// failures come back as a *store.StoreError wrapping store.ErrUpdateFailed
// and the mapped cause.
func (s *PostgresTaskStore) updateActive(ctx context.Context, op string, id uuid.UUID, upd domain.TaskUpdate) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = COALESCE($2, status),
			external_id = COALESCE($3, external_id),
			output_ref = COALESCE($4, output_ref),
			error_msg = COALESCE($5, error_msg),
			updated_at = $6
		WHERE id = $1 AND status NOT IN ('succeeded', 'failed')
	`
	result, err := s.db.ExecContext(ctx, query,
		id,
		nullStatus(upd.Status),
		nullString(upd.ExternalID),
		nullString(upd.OutputRef),
		nullString(upd.ErrorMsg),
		time.Now().UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("external id already held by another task",
				slog.String("task_id", id.String()),
				slog.String("error", err.Error()))
		} else {
			log.Error("failed to update task",
				slog.String("task_id", id.String()),
				slog.String("error", err.Error()))
		}
		return false, store.NewStoreError("task", op, "failed to update task",
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err)))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, store.NewStoreError("task", op, "failed to get rows affected",
			fmt.Errorf("%w: %w", store.ErrUpdateFailed, err))
	}
	if rows > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, MapError(err)
	}
	if !exists {
		return false, store.ErrTaskNotFound
	}
	log.Debug("update skipped for finished task", slog.String("task_id", id.String()))
	return false, nil
}

// FindByExternalID implements task.Repository.
func (s *PostgresTaskStore) FindByExternalID(ctx context.Context, kind, externalID string) (*domain.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE kind = $1 AND external_id = $2`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, kind, externalID))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return rec, nil
}

// ListActive implements task.Repository.
func (s *PostgresTaskStore) ListActive(ctx context.Context) ([]*domain.TaskRecord, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status IN ('pending', 'processing')
		ORDER BY created_at ASC`
	return s.list(ctx, query)
}

// ListStale implements task.Repository.
func (s *PostgresTaskStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.TaskRecord, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY created_at ASC`
	return s.list(ctx, query, time.Now().UTC().Add(-olderThan))
}

func (s *PostgresTaskStore) list(ctx context.Context, query string, args ...any) ([]*domain.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.TaskRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TaskRecord, error) {
	var (
		rec        domain.TaskRecord
		userID     uuid.NullUUID
		status     string
		metadata   []byte
		outputRef  sql.NullString
		externalID sql.NullString
		errorMsg   sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&userID,
		&rec.Kind,
		&status,
		&rec.Priority,
		&rec.InputRef,
		&metadata,
		&outputRef,
		&externalID,
		&errorMsg,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.TaskStatus(status)
	rec.Metadata = metadata
	if userID.Valid {
		id := userID.UUID
		rec.UserID = &id
	}
	rec.OutputRef = stringPtr(outputRef)
	rec.ExternalID = stringPtr(externalID)
	rec.ErrorMsg = stringPtr(errorMsg)
	return &rec, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStatus(s *domain.TaskStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
