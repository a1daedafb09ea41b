package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

const requestColumns = `id, request_type, submitted_by, submitted_at, current_stage,
	group_key, payload, document_ref, updated_at`

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, rec *entity.RequestRecord) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.getExecutor(ctx).Exec(ctx, query,
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
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	rec, err := scanRequest(r.db.getExecutor(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := r.db.getExecutor(ctx).Exec(ctx, `
		UPDATE requests
		SET current_stage = $1, updated_at = $2
		WHERE id = $3 AND current_stage = $4
	`, string(next), at.UTC(), id, string(expected))
	if err != nil {
		r.logger.Error("Failed to update request stage", zap.String("request_id", id), zap.Error(err))
		return fmt.Errorf("failed to update request stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.RequestType != "" {
		where = append(where, "request_type = "+arg(string(filter.RequestType)))
	}
	if !filter.AllGroups {
		where = append(where, "group_key = ANY("+arg(filter.GroupKeys)+")")
	}
	if len(filter.Stages) > 0 {
		stages := make([]string, len(filter.Stages))
		for i, s := range filter.Stages {
			stages[i] = string(s)
		}
		where = append(where, "current_stage = ANY("+arg(stages)+")")
	}
	if filter.SubmittedBy != "" {
		where = append(where, "submitted_by = "+arg(filter.SubmittedBy))
	}
	if filter.SubmittedFrom != nil {
		where = append(where, "submitted_at >= "+arg(filter.SubmittedFrom.UTC()))
	}
	if filter.SubmittedTo != nil {
		where = append(where, "submitted_at <= "+arg(filter.SubmittedTo.UTC()))
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY submitted_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.db.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
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

func scanRequest(row pgx.Row) (*entity.RequestRecord, error) {
	var (
		rec          entity.RequestRecord
		requestType  string
		currentStage string
		payload      []byte
	)
	err := row.Scan(
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

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
