package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// AuditRepository appends and reads immutable audit entries. A trigger
// rejects UPDATE and DELETE on the table.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append inserts one entry and sets its ID
func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	err := r.db.getExecutor(ctx).QueryRow(ctx, `
		INSERT INTO audit_entries
		    (request_id, stage_id, result_stage, actor_id, action, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		entry.RequestID,
		string(entry.StageID),
		string(entry.ResultStage),
		entry.ActorID,
		string(entry.Action),
		entry.Notes,
		entry.Timestamp.UTC(),
	).Scan(&entry.ID)
	if err != nil {
		r.logger.Error("Failed to append audit entry", zap.String("request_id", entry.RequestID), zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// GetByRequestID returns the audit trail ordered oldest-first
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.AuditEntry, error) {
	rows, err := r.db.getExecutor(ctx).Query(ctx, `
		SELECT id, request_id, stage_id, result_stage, actor_id, action, notes, created_at
		FROM audit_entries
		WHERE request_id = $1
		ORDER BY id ASC
	`, requestID)
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
	var exists bool
	err := r.db.getExecutor(ctx).QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM audit_entries
			WHERE request_id = $1 AND stage_id = $2 AND action = $3
		)
	`, requestID, string(stage), string(action)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check audit entry: %w", err)
	}
	return exists, nil
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
