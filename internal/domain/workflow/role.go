package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Role is an authorization role held by an actor
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleHR                Role = "hr"
	RoleApprover          Role = "approver"
	RoleViewer            Role = "viewer"
	RoleOperationsManager Role = "operations_manager"
	RolePurchasingOfficer Role = "purchasing_officer"
	RoleUpperManagement   Role = "upper_management"
)

var knownRoles = map[Role]bool{
	RoleAdmin:             true,
	RoleHR:                true,
	RoleApprover:          true,
	RoleViewer:            true,
	RoleOperationsManager: true,
	RolePurchasingOfficer: true,
	RoleUpperManagement:   true,
}

// ParseRole normalizes and validates a role identifier coming from outside the engine
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// IsValid returns true if the role is one of the known roles
func (r Role) IsValid() bool {
	return knownRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// RoleSet is an unordered set of roles
type RoleSet map[Role]struct{}

// NewRoleSet creates a set containing the given roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the role
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Intersects reports whether the two sets share at least one role.
// RoleViewer never counts as a match.
func (s RoleSet) Intersects(other RoleSet) bool {
	for r := range s {
		if r == RoleViewer {
			continue
		}
		if other.Has(r) {
			return true
		}
	}
	return false
}

// Slice returns the roles sorted by name
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a copy of the set
func (s RoleSet) Clone() RoleSet {
	out := make(RoleSet, len(s))
	for r := range s {
		out[r] = struct{}{}
	}
	return out
}
