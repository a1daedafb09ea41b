package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// SideEffect applies the consequence of a terminal approval
type SideEffect func(ctx context.Context, rec *entity.RequestRecord, actorID string) error

type effectKey struct {
	requestType workflow.RequestType
	stage       workflow.StageID
}

// SideEffectRegistry maps (request type, terminal stage) to a side-effect and
// applies each at most once per request
type SideEffectRegistry struct {
	effects map[effectKey]SideEffect
	audit   *AuditTrail
	log     port.EffectLog
	tx      port.TransactionManager
	now     func() time.Time
}

// NewSideEffectRegistry creates an empty registry
func NewSideEffectRegistry(audit *AuditTrail, log port.EffectLog, tx port.TransactionManager) *SideEffectRegistry {
	return &SideEffectRegistry{
		effects: make(map[effectKey]SideEffect),
		audit:   audit,
		log:     log,
		tx:      tx,
		now:     time.Now,
	}
}

// Register sets the side-effect for a request type's stage
func (r *SideEffectRegistry) Register(t workflow.RequestType, stage workflow.StageID, fn SideEffect) *SideEffectRegistry {
	r.effects[effectKey{t, stage}] = fn
	return r
}

// Has reports whether a side-effect is registered for the stage
func (r *SideEffectRegistry) Has(t workflow.RequestType, stage workflow.StageID) bool {
	_, ok := r.effects[effectKey{t, stage}]
	return ok
}

// Apply runs the registered side-effect for the record's approval at stage.
// It refuses to run without a recorded approval at that stage, and a second
// call for the same record and stage is a no-op. Reports whether the effect ran.
func (r *SideEffectRegistry) Apply(ctx context.Context, rec *entity.RequestRecord, stage workflow.StageID, actorID string) (bool, error) {
	fn, ok := r.effects[effectKey{rec.RequestType, stage}]
	if !ok {
		return false, nil
	}

	approved, err := r.audit.HasApproved(ctx, rec.ID, stage)
	if err != nil {
		return false, err
	}
	if !approved {
		return false, fmt.Errorf("request %s has no recorded approval at %s", rec.ID, stage)
	}

	applied := false
	err = r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		first, err := r.log.MarkApplied(txCtx, rec.ID, stage, r.now().UTC())
		if err != nil {
			return unavailable("mark side-effect applied", err)
		}
		if !first {
			return nil
		}
		if err := fn(txCtx, rec, actorID); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// LeaveCreditDeduction debits the submitter's leave balance by the request's
// day count for credit-bearing categories
func LeaveCreditDeduction(ledger port.CreditLedger) SideEffect {
	return func(ctx context.Context, rec *entity.RequestRecord, actorID string) error {
		var p entity.LeavePayload
		if err := rec.DecodePayload(&p); err != nil {
			return err
		}
		if !p.IsCreditBearing() {
			return nil
		}
		days := p.DayCount()
		if days <= 0 {
			return nil
		}
		if _, err := ledger.Debit(ctx, rec.SubmittedBy, p.CreditKind(), days); err != nil {
			return fmt.Errorf("debit %s %s: %w", rec.SubmittedBy, p.CreditKind(), err)
		}
		return nil
	}
}

// RegisterDefaultSideEffects wires the built-in side-effects at the terminal
// stage of each workflow in the registry
func RegisterDefaultSideEffects(effects *SideEffectRegistry, workflows *workflow.Registry, ledger port.CreditLedger) error {
	leave, err := workflows.Get(workflow.RequestTypeLeave)
	if err != nil {
		return err
	}
	effects.Register(workflow.RequestTypeLeave, leave.TerminalApprovedStage(), LeaveCreditDeduction(ledger))
	return nil
}
