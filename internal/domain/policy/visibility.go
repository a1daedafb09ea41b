package policy

import (
	"sort"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Scope is the set of groups an actor may see for one request type
type Scope struct {
	All    bool
	groups map[string]struct{}
}

// ScopeFor computes the actor's scope under the definition: oversight roles
// see everything, group members see their groups, everyone else sees nothing.
func ScopeFor(def *workflow.Definition, actor entity.Actor) Scope {
	if def.IsOversight(actor.Roles) {
		return Scope{All: true}
	}
	groups := make(map[string]struct{}, len(actor.Groups))
	for g := range actor.Groups {
		groups[g] = struct{}{}
	}
	return Scope{groups: groups}
}

// IsEmpty reports whether the scope admits no request
func (s Scope) IsEmpty() bool {
	return !s.All && len(s.groups) == 0
}

// Contains reports whether a request in the group is inside the scope
func (s Scope) Contains(groupKey string) bool {
	if s.All {
		return true
	}
	_, ok := s.groups[groupKey]
	return ok
}

// GroupKeys returns the scoped groups sorted; nil when the scope is unrestricted
func (s Scope) GroupKeys() []string {
	if s.All {
		return nil
	}
	keys := make([]string, 0, len(s.groups))
	for g := range s.groups {
		keys = append(keys, g)
	}
	sort.Strings(keys)
	return keys
}

// VisibleRequests returns the records of the definition's type that the actor may see
func VisibleRequests(def *workflow.Definition, actor entity.Actor, all []*entity.RequestRecord) []*entity.RequestRecord {
	scope := ScopeFor(def, actor)
	if scope.IsEmpty() {
		return []*entity.RequestRecord{}
	}

	visible := make([]*entity.RequestRecord, 0, len(all))
	for _, rec := range all {
		if rec.RequestType != def.RequestType {
			continue
		}
		if scope.Contains(rec.GroupKey) {
			visible = append(visible, rec)
		}
	}
	return visible
}
