package workflow

import (
	"fmt"
	"sort"
)

// Machine is an immutable transition table keyed by stage and action.
// It holds no current state; records carry their own stage.
type Machine struct {
	transitions map[StageID]map[Action]StageID
}

// Target returns the stage reached by performing the action from the given stage
func (m Machine) Target(from StageID, action Action) (StageID, bool) {
	edges, exists := m.transitions[from]
	if !exists {
		return "", false
	}
	to, exists := edges[action]
	return to, exists
}

// CanFire returns true if the action is permitted from the stage
func (m Machine) CanFire(from StageID, action Action) bool {
	_, ok := m.Target(from, action)
	return ok
}

// Fire returns the target stage or ErrInvalidTransition
func (m Machine) Fire(from StageID, action Action) (StageID, error) {
	to, ok := m.Target(from, action)
	if !ok {
		return "", fmt.Errorf("%w: cannot perform %s from stage %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// PermittedActions returns all actions available from the stage, sorted
func (m Machine) PermittedActions(from StageID) []Action {
	edges, exists := m.transitions[from]
	if !exists {
		return []Action{}
	}

	actions := make([]Action, 0, len(edges))
	for action := range edges {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}
