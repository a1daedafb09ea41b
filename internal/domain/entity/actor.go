package entity

import (
	"sort"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Actor is the identity performing an operation, resolved server-side per call
type Actor struct {
	ID     string
	Roles  workflow.RoleSet
	Groups map[string]struct{}
}

// NewActor creates an actor with the given roles and group memberships
func NewActor(id string, roles []workflow.Role, groups []string) Actor {
	a := Actor{
		ID:     id,
		Roles:  workflow.NewRoleSet(roles...),
		Groups: make(map[string]struct{}, len(groups)),
	}
	for _, g := range groups {
		if g != "" {
			a.Groups[g] = struct{}{}
		}
	}
	return a
}

// HasRole reports whether the actor holds the role
func (a Actor) HasRole(r workflow.Role) bool {
	return a.Roles.Has(r)
}

// InGroup reports whether the actor is a member of the group
func (a Actor) InGroup(groupKey string) bool {
	_, ok := a.Groups[groupKey]
	return ok
}

// GroupKeys returns the actor's groups sorted
func (a Actor) GroupKeys() []string {
	keys := make([]string, 0, len(a.Groups))
	for g := range a.Groups {
		keys = append(keys, g)
	}
	sort.Strings(keys)
	return keys
}
