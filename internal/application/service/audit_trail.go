package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// AuditTrail is the append-only history of actions on requests
type AuditTrail struct {
	repo port.AuditRepository
	now  func() time.Time
}

// NewAuditTrail creates an audit trail over the repository
func NewAuditTrail(repo port.AuditRepository) *AuditTrail {
	return &AuditTrail{repo: repo, now: time.Now}
}

// Append records an entry. A missing timestamp is filled in.
// Storage failures are returned wrapped in ErrStorageUnavailable.
func (a *AuditTrail) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if entry.RequestID == "" || entry.ActorID == "" {
		return fmt.Errorf("audit entry needs request and actor")
	}
	if !entry.Action.IsValid() {
		return fmt.Errorf("audit entry has invalid action %q", entry.Action)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now().UTC()
	}
	if err := a.repo.Append(ctx, entry); err != nil {
		return unavailable("append audit entry", err)
	}
	return nil
}

// HistoryFor returns the entries of a request in insertion order
func (a *AuditTrail) HistoryFor(ctx context.Context, requestID string) ([]*entity.AuditEntry, error) {
	entries, err := a.repo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, unavailable("read audit history", err)
	}
	return entries, nil
}

// HasApproved reports whether an approval at the stage was recorded for the request
func (a *AuditTrail) HasApproved(ctx context.Context, requestID string, stage workflow.StageID) (bool, error) {
	ok, err := a.repo.HasEntry(ctx, requestID, stage, workflow.ActionApproved)
	if err != nil {
		return false, unavailable("check audit history", err)
	}
	return ok, nil
}
