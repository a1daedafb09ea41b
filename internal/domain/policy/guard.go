package policy

import (
	"fmt"
	"strings"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Denial reasons shown to callers verbatim
const (
	ReasonInsufficientRole  = "insufficient role"
	ReasonClosed            = "request is already closed"
	ReasonStaleStage        = "stale stage: request has already moved past the expected stage"
	ReasonOutOfScope        = "request is outside your groups"
	ReasonNotRejectable     = "request cannot be rejected at this stage"
	ReasonRejectionReason   = "a reason is required to reject"
	ReasonNotSubmitter      = "only the submitter may cancel"
	ReasonCancelWindow      = "request can only be cancelled before any approval"
	ReasonUnknownStage      = "request is at a stage unknown to its workflow"
	ReasonUnsupportedAction = "unsupported action"
)

// Verdict is the outcome of a transition check. Denials carry a reason and
// never an error.
type Verdict struct {
	Allowed bool
	Reason  string
	From    workflow.StageID
	To      workflow.StageID
}

func allow(from, to workflow.StageID) Verdict {
	return Verdict{Allowed: true, From: from, To: to}
}

func deny(from workflow.StageID, reason string) Verdict {
	return Verdict{Reason: reason, From: from}
}

// Precondition checks type-specific payload requirements for an action.
// It returns an empty string when satisfied.
type Precondition func(action workflow.Action, rec *entity.RequestRecord) string

// TransitionRequest describes what the actor is trying to do
type TransitionRequest struct {
	Action workflow.Action
	Actor  entity.Actor
	// Notes carries approval notes or the rejection reason
	Notes string
	// ExpectedStage is the stage the caller last observed. Empty skips the check.
	ExpectedStage workflow.StageID
}

// Guard decides whether a transition is legal
type Guard struct {
	registry      *workflow.Registry
	preconditions map[workflow.RequestType]Precondition
}

// NewGuard creates a guard with the built-in payload preconditions
func NewGuard(registry *workflow.Registry) *Guard {
	return &Guard{
		registry: registry,
		preconditions: map[workflow.RequestType]Precondition{
			workflow.RequestTypeFailureToLog: FailureToLogClockTimes,
		},
	}
}

// WithPrecondition registers or replaces the precondition for a request type
func (g *Guard) WithPrecondition(t workflow.RequestType, p Precondition) *Guard {
	g.preconditions[t] = p
	return g
}

// CanTransition evaluates the request against the record's current stage
func (g *Guard) CanTransition(rec *entity.RequestRecord, req TransitionRequest) Verdict {
	from := rec.CurrentStage

	def, err := g.registry.Get(rec.RequestType)
	if err != nil {
		return deny(from, err.Error())
	}

	if req.ExpectedStage != "" && req.ExpectedStage != from {
		return deny(from, ReasonStaleStage)
	}
	if from.IsClosed() {
		return deny(from, ReasonClosed)
	}
	if !def.HasStage(from) {
		return deny(from, ReasonUnknownStage)
	}

	switch req.Action {
	case workflow.ActionApproved:
		return g.checkApprove(def, rec, req)
	case workflow.ActionRejected:
		return g.checkReject(def, rec, req)
	case workflow.ActionCancelled:
		return g.checkCancel(def, rec, req)
	default:
		return deny(from, ReasonUnsupportedAction)
	}
}

func (g *Guard) checkApprove(def *workflow.Definition, rec *entity.RequestRecord, req TransitionRequest) Verdict {
	from := rec.CurrentStage

	if !def.CanActAt(req.Actor.Roles, from) {
		return deny(from, ReasonInsufficientRole)
	}
	if !ScopeFor(def, req.Actor).Contains(rec.GroupKey) {
		return deny(from, ReasonOutOfScope)
	}
	if p, ok := g.preconditions[rec.RequestType]; ok {
		if reason := p(workflow.ActionApproved, rec); reason != "" {
			return deny(from, reason)
		}
	}

	to, err := def.Machine().Fire(from, workflow.ActionApproved)
	if err != nil {
		return deny(from, err.Error())
	}
	return allow(from, to)
}

func (g *Guard) checkReject(def *workflow.Definition, rec *entity.RequestRecord, req TransitionRequest) Verdict {
	from := rec.CurrentStage

	if !def.IsRejectable(from) {
		return deny(from, ReasonNotRejectable)
	}
	if !def.CanActAt(req.Actor.Roles, from) {
		return deny(from, ReasonInsufficientRole)
	}
	if !ScopeFor(def, req.Actor).Contains(rec.GroupKey) {
		return deny(from, ReasonOutOfScope)
	}
	if strings.TrimSpace(req.Notes) == "" {
		return deny(from, ReasonRejectionReason)
	}

	to, err := def.Machine().Fire(from, workflow.ActionRejected)
	if err != nil {
		return deny(from, err.Error())
	}
	return allow(from, to)
}

func (g *Guard) checkCancel(def *workflow.Definition, rec *entity.RequestRecord, req TransitionRequest) Verdict {
	from := rec.CurrentStage

	if req.Actor.ID == "" || req.Actor.ID != rec.SubmittedBy {
		return deny(from, ReasonNotSubmitter)
	}
	if from != def.InitialStage() {
		return deny(from, ReasonCancelWindow)
	}

	to, err := def.Machine().Fire(from, workflow.ActionCancelled)
	if err != nil {
		return deny(from, err.Error())
	}
	return allow(from, to)
}

// FailureToLogClockTimes requires the corrected times implied by the entry
// type before approval
func FailureToLogClockTimes(action workflow.Action, rec *entity.RequestRecord) string {
	if action != workflow.ActionApproved {
		return ""
	}
	var p entity.FailureToLogPayload
	if err := rec.DecodePayload(&p); err != nil {
		return "payload could not be read"
	}
	if missing := p.MissingClockTimes(); len(missing) > 0 {
		return fmt.Sprintf("missing clock times: %s", strings.Join(missing, ", "))
	}
	return ""
}
