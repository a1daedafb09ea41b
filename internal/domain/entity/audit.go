package entity

import (
	"time"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// AuditEntry records one action taken on a request. Entries are append-only.
type AuditEntry struct {
	ID          int64            `json:"id"`
	RequestID   string           `json:"request_id"`
	StageID     workflow.StageID `json:"stage_id"`
	ResultStage workflow.StageID `json:"result_stage"`
	ActorID     string           `json:"actor_id"`
	Action      workflow.Action  `json:"action"`
	Notes       string           `json:"notes,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}
