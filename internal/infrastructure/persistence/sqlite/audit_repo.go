package sqlite

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// AuditRepository implements port.AuditRepository. The table rejects
// UPDATE and DELETE through triggers, so Append is the only mutation.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts an entry and sets its ID
func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (
			request_id, stage_id, result_stage, actor_id, action, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.getExecutor(ctx).ExecContext(ctx, query,
		entry.RequestID,
		string(entry.StageID),
		string(entry.ResultStage),
		entry.ActorID,
		string(entry.Action),
		entry.Notes,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("request_id", entry.RequestID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetByRequestID returns entries in insertion order
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, request_id, stage_id, result_stage, actor_id, action, notes, created_at
		FROM audit_entries
		WHERE request_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get audit entries", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*entity.AuditEntry{}
	for rows.Next() {
		var (
			e                  entity.AuditEntry
			stage, result, act string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &stage, &result, &e.ActorID, &act, &e.Notes, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.StageID = workflow.StageID(stage)
		e.ResultStage = workflow.StageID(result)
		e.Action = workflow.Action(act)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// HasEntry reports whether the request has an entry with the stage and action
func (r *AuditRepository) HasEntry(ctx context.Context, requestID string, stage workflow.StageID, action workflow.Action) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM audit_entries
			WHERE request_id = ? AND stage_id = ? AND action = ?
		)
	`

	var exists bool
	if err := r.db.getExecutor(ctx).QueryRowContext(ctx, query, requestID, string(stage), string(action)).Scan(&exists); err != nil {
		r.logger.Error("Failed to check audit entry", zap.String("request_id", requestID), zap.Error(err))
		return false, fmt.Errorf("failed to check audit entry: %w", err)
	}
	return exists, nil
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
