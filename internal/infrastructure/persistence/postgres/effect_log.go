package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// EffectLog implements port.EffectLog
type EffectLog struct {
	db *DB
}

// NewEffectLog creates a new effect log
func NewEffectLog(db *DB) *EffectLog {
	return &EffectLog{db: db}
}

// MarkApplied inserts the marker and reports whether it was not present yet
func (l *EffectLog) MarkApplied(ctx context.Context, requestID string, stage workflow.StageID, at time.Time) (bool, error) {
	tag, err := l.db.getExecutor(ctx).Exec(ctx, `
		INSERT INTO side_effect_applications (request_id, stage_id, applied_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, requestID, string(stage), at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark side-effect applied: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// WasApplied reports whether the marker exists
func (l *EffectLog) WasApplied(ctx context.Context, requestID string, stage workflow.StageID) (bool, error) {
	var exists bool
	err := l.db.getExecutor(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM side_effect_applications WHERE request_id = $1 AND stage_id = $2)`,
		requestID, string(stage),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check side-effect: %w", err)
	}
	return exists, nil
}

// Verify interface compliance
var _ port.EffectLog = (*EffectLog)(nil)
