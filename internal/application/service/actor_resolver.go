package service

import (
	"context"
	"strings"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// ActorResolver builds an Actor from the identity collaborator. Role strings
// are validated here so the engine only ever sees known roles.
type ActorResolver struct {
	identity port.IdentityProvider
	logger   Logger
}

// NewActorResolver creates a resolver
func NewActorResolver(identity port.IdentityProvider, logger Logger) *ActorResolver {
	if logger == nil {
		logger = nopLogger{}
	}
	return &ActorResolver{identity: identity, logger: logger}
}

// Resolve looks up the actor's roles and groups. Unknown roles are dropped.
func (r *ActorResolver) Resolve(ctx context.Context, actorID string) (entity.Actor, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return entity.Actor{}, denied("actor is required")
	}

	rawRoles, err := r.identity.RolesOf(ctx, actorID)
	if err != nil {
		return entity.Actor{}, unavailable("resolve roles", err)
	}
	groups, err := r.identity.GroupMembershipsOf(ctx, actorID)
	if err != nil {
		return entity.Actor{}, unavailable("resolve groups", err)
	}

	roles := make([]workflow.Role, 0, len(rawRoles))
	for _, raw := range rawRoles {
		role, err := workflow.ParseRole(raw)
		if err != nil {
			r.logger.Warn("Ignoring unknown role", "actor_id", actorID, "role", raw)
			continue
		}
		roles = append(roles, role)
	}

	cleaned := make([]string, 0, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			cleaned = append(cleaned, g)
		}
	}

	return entity.NewActor(actorID, roles, cleaned), nil
}
