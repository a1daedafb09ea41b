package workflow

import "strings"

// StageID identifies one step of an approval chain, or one of the closed outcomes
type StageID string

// Stages of the built-in workflows
const (
	StageManagerReview StageID = "manager_review"
	StageHRReview      StageID = "hr_review"

	StagePMReview   StageID = "pm_review"
	StagePOReview   StageID = "po_review"
	StageMgmtReview StageID = "mgmt_review"

	StageSingleReview StageID = "single_review"
)

// Closed outcomes shared by every workflow. None of them has outgoing edges.
const (
	StageApproved  StageID = "approved"
	StageRejected  StageID = "rejected"
	StageCancelled StageID = "cancelled"
)

var closedStages = map[StageID]bool{
	StageApproved:  true,
	StageRejected:  true,
	StageCancelled: true,
}

// ParseStageID normalizes a stage identifier. Whether the stage exists is
// decided by the Definition it is used with.
func ParseStageID(s string) StageID {
	return StageID(strings.ToLower(strings.TrimSpace(s)))
}

// IsClosed returns true for approved, rejected and cancelled
func (s StageID) IsClosed() bool {
	return closedStages[s]
}

// String returns the string representation of the stage
func (s StageID) String() string {
	return string(s)
}
