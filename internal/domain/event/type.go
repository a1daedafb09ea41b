package event

import "github.com/garyjia/approval-engine/internal/domain/workflow"

// Type identifies a request lifecycle event
type Type string

const (
	TypeRequestSubmitted  Type = "request.submitted"
	TypeRequestAdvanced   Type = "request.advanced"
	TypeRequestApproved   Type = "request.approved"
	TypeRequestRejected   Type = "request.rejected"
	TypeRequestCancelled  Type = "request.cancelled"
	TypeSideEffectApplied Type = "side_effect.applied"
	TypeSideEffectFailed  Type = "side_effect.failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestSubmitted,
		TypeRequestAdvanced,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestCancelled,
		TypeSideEffectApplied,
		TypeSideEffectFailed:
		return true
	default:
		return false
	}
}

// TypeFor maps a committed action and the stage it produced to an event type.
// An approval that leaves the record open is an advance.
func TypeFor(action workflow.Action, result workflow.StageID) Type {
	switch action {
	case workflow.ActionSubmitted:
		return TypeRequestSubmitted
	case workflow.ActionApproved:
		if result == workflow.StageApproved {
			return TypeRequestApproved
		}
		return TypeRequestAdvanced
	case workflow.ActionRejected:
		return TypeRequestRejected
	case workflow.ActionCancelled:
		return TypeRequestCancelled
	default:
		return ""
	}
}
