package workflow

import (
	"fmt"
	"strings"
)

// Action is something an actor does to a request. The same values are
// recorded on audit entries.
type Action string

const (
	ActionSubmitted Action = "submitted"
	ActionApproved  Action = "approved"
	ActionRejected  Action = "rejected"
	ActionCancelled Action = "cancelled"
)

var validActions = map[Action]bool{
	ActionSubmitted: true,
	ActionApproved:  true,
	ActionRejected:  true,
	ActionCancelled: true,
}

// ParseAction normalizes and validates an action name
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !validActions[a] {
		return "", fmt.Errorf("unknown action: %q", s)
	}
	return a, nil
}

// IsValid returns true if the action is known
func (a Action) IsValid() bool {
	return validActions[a]
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}
