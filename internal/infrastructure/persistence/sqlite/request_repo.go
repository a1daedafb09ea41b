package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `id, request_type, submitted_by, submitted_at, current_stage,
	group_key, payload, document_ref, updated_at`

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, rec *entity.RequestRecord) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.getExecutor(ctx).ExecContext(ctx, query,
		rec.ID,
		string(rec.RequestType),
		rec.SubmittedBy,
		rec.SubmittedAt.UTC(),
		string(rec.CurrentStage),
		rec.GroupKey,
		string(rec.Payload),
		rec.DocumentRef,
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("request_id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by ID. Returns nil, nil when absent.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.RequestRecord, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	rec, err := scanRequest(r.db.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return rec, nil
}

// CompareAndSwapStage moves the request to next only if it is still at expected
func (r *RequestRepository) CompareAndSwapStage(ctx context.Context, id string, expected, next workflow.StageID, at time.Time) error {
	query := `
		UPDATE requests
		SET current_stage = ?, updated_at = ?
		WHERE id = ? AND current_stage = ?
	`

	result, err := r.db.getExecutor(ctx).ExecContext(ctx, query, string(next), at.UTC(), id, string(expected))
	if err != nil {
		r.logger.Error("Failed to update request stage",
			zap.String("request_id", id),
			zap.String("expected", string(expected)),
			zap.String("next", string(next)),
			zap.Error(err))
		return fmt.Errorf("failed to update request stage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return port.ErrStageConflict
	}
	return nil
}

// List returns requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.RequestRecord, error) {
	if !filter.AllGroups && len(filter.GroupKeys) == 0 {
		return []*entity.RequestRecord{}, nil
	}

	var (
		where []string
		args  []interface{}
	)
	if filter.RequestType != "" {
		where = append(where, "request_type = ?")
		args = append(args, string(filter.RequestType))
	}
	if !filter.AllGroups {
		where = append(where, "group_key IN ("+placeholders(len(filter.GroupKeys))+")")
		for _, g := range filter.GroupKeys {
			args = append(args, g)
		}
	}
	if len(filter.Stages) > 0 {
		where = append(where, "current_stage IN ("+placeholders(len(filter.Stages))+")")
		for _, s := range filter.Stages {
			args = append(args, string(s))
		}
	}
	if filter.SubmittedBy != "" {
		where = append(where, "submitted_by = ?")
		args = append(args, filter.SubmittedBy)
	}
	if filter.SubmittedFrom != nil {
		where = append(where, "submitted_at >= ?")
		args = append(args, filter.SubmittedFrom.UTC())
	}
	if filter.SubmittedTo != nil {
		where = append(where, "submitted_at <= ?")
		args = append(args, filter.SubmittedTo.UTC())
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY submitted_at DESC, rowid DESC"

	switch {
	case filter.Limit > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	case filter.Offset > 0:
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.String("request_type", string(filter.RequestType)), zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	out := []*entity.RequestRecord{}
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(sc rowScanner) (*entity.RequestRecord, error) {
	var (
		rec          entity.RequestRecord
		requestType  string
		currentStage string
		payload      string
	)
	err := sc.Scan(
		&rec.ID,
		&requestType,
		&rec.SubmittedBy,
		&rec.SubmittedAt,
		&currentStage,
		&rec.GroupKey,
		&payload,
		&rec.DocumentRef,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.RequestType = workflow.RequestType(requestType)
	rec.CurrentStage = workflow.StageID(currentStage)
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
