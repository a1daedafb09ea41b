package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// EffectLog implements port.EffectLog on side_effect_applications
type EffectLog struct {
	db     *DB
	logger *zap.Logger
}

// NewEffectLog creates a new effect log
func NewEffectLog(db *DB, logger *zap.Logger) *EffectLog {
	return &EffectLog{db: db, logger: logger}
}

// MarkApplied inserts the marker and reports whether it was not present yet
func (l *EffectLog) MarkApplied(ctx context.Context, requestID string, stage workflow.StageID, at time.Time) (bool, error) {
	query := `
		INSERT OR IGNORE INTO side_effect_applications (request_id, stage_id, applied_at)
		VALUES (?, ?, ?)
	`

	result, err := l.db.getExecutor(ctx).ExecContext(ctx, query, requestID, string(stage), at.UTC())
	if err != nil {
		l.logger.Error("Failed to mark side-effect applied", zap.String("request_id", requestID), zap.Error(err))
		return false, fmt.Errorf("failed to mark side-effect applied: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows == 1, nil
}

// WasApplied reports whether the marker exists
func (l *EffectLog) WasApplied(ctx context.Context, requestID string, stage workflow.StageID) (bool, error) {
	var exists bool
	err := l.db.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM side_effect_applications WHERE request_id = ? AND stage_id = ?)`,
		requestID, string(stage),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check side-effect: %w", err)
	}
	return exists, nil
}

// Verify interface compliance
var _ port.EffectLog = (*EffectLog)(nil)
