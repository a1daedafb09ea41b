package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/garyjia/approval-engine/internal/application/port"
)

// IdentityRepository implements port.IdentityProvider
type IdentityRepository struct {
	db *DB
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// RolesOf returns the actor's role names sorted
func (r *IdentityRepository) RolesOf(ctx context.Context, actorID string) ([]string, error) {
	return r.column(ctx, `SELECT role FROM actor_roles WHERE actor_id = $1 ORDER BY role`, actorID)
}

// GroupMembershipsOf returns the actor's group keys sorted
func (r *IdentityRepository) GroupMembershipsOf(ctx context.Context, actorID string) ([]string, error) {
	return r.column(ctx, `SELECT group_key FROM actor_groups WHERE actor_id = $1 ORDER BY group_key`, actorID)
}

// GrantRole adds a role to the actor
func (r *IdentityRepository) GrantRole(ctx context.Context, actorID, role string) error {
	_, err := r.db.getExecutor(ctx).Exec(ctx,
		`INSERT INTO actor_roles (actor_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, actorID, role)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// AddToGroup adds the actor to a group
func (r *IdentityRepository) AddToGroup(ctx context.Context, actorID, groupKey string) error {
	_, err := r.db.getExecutor(ctx).Exec(ctx,
		`INSERT INTO actor_groups (actor_id, group_key) VALUES ($1, $2) ON CONFLICT DO NOTHING`, actorID, groupKey)
	if err != nil {
		return fmt.Errorf("failed to add group membership: %w", err)
	}
	return nil
}

func (r *IdentityRepository) column(ctx context.Context, query, actorID string) ([]string, error) {
	rows, err := r.db.getExecutor(ctx).Query(ctx, query, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan identity rows: %w", err)
	}
	return values, nil
}

// Verify interface compliance
var _ port.IdentityProvider = (*IdentityRepository)(nil)
