package sqlite

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"go.uber.org/zap"
)

// IdentityRepository implements port.IdentityProvider on actor_roles and actor_groups
type IdentityRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *DB, logger *zap.Logger) *IdentityRepository {
	return &IdentityRepository{db: db, logger: logger}
}

// RolesOf returns the actor's role names sorted
func (r *IdentityRepository) RolesOf(ctx context.Context, actorID string) ([]string, error) {
	return r.column(ctx, `SELECT role FROM actor_roles WHERE actor_id = ? ORDER BY role`, actorID)
}

// GroupMembershipsOf returns the actor's group keys sorted
func (r *IdentityRepository) GroupMembershipsOf(ctx context.Context, actorID string) ([]string, error) {
	return r.column(ctx, `SELECT group_key FROM actor_groups WHERE actor_id = ? ORDER BY group_key`, actorID)
}

// GrantRole adds a role to the actor. Granting twice is a no-op.
func (r *IdentityRepository) GrantRole(ctx context.Context, actorID, role string) error {
	_, err := r.db.getExecutor(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO actor_roles (actor_id, role) VALUES (?, ?)`, actorID, role)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// AddToGroup adds the actor to a group. Adding twice is a no-op.
func (r *IdentityRepository) AddToGroup(ctx context.Context, actorID, groupKey string) error {
	_, err := r.db.getExecutor(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO actor_groups (actor_id, group_key) VALUES (?, ?)`, actorID, groupKey)
	if err != nil {
		return fmt.Errorf("failed to add group membership: %w", err)
	}
	return nil
}

func (r *IdentityRepository) column(ctx context.Context, query, actorID string) ([]string, error) {
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, actorID)
	if err != nil {
		r.logger.Error("Failed to query identity", zap.String("actor_id", actorID), zap.Error(err))
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan identity row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Verify interface compliance
var _ port.IdentityProvider = (*IdentityRepository)(nil)
