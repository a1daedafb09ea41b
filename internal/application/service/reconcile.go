package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/policy"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// ReconcileReport summarizes a bulk reconciliation
type ReconcileReport struct {
	Checked int
	Applied []string
	Failed  map[string]error
}

// Reconciler re-runs terminal side-effects that failed after an approval was
// recorded. It is triggered by an operator, never automatically.
type Reconciler struct {
	registry *workflow.Registry
	requests port.RequestRepository
	effects  *SideEffectRegistry
	log      port.EffectLog
	logger   Logger
}

// NewReconciler creates a Reconciler
func NewReconciler(registry *workflow.Registry, requests port.RequestRepository, effects *SideEffectRegistry, log port.EffectLog, logger Logger) *Reconciler {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Reconciler{registry: registry, requests: requests, effects: effects, log: log, logger: logger}
}

// Reconcile applies the side-effect of one approved record if it has not
// been applied yet. Only admins may reconcile.
func (r *Reconciler) Reconcile(ctx context.Context, requestID string, actor entity.Actor) (bool, error) {
	if !actor.HasRole(workflow.RoleAdmin) {
		return false, denied(policy.ReasonInsufficientRole)
	}

	requestID = strings.TrimSpace(requestID)
	rec, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		return false, unavailable("load request", err)
	}
	if rec == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	if rec.CurrentStage != workflow.StageApproved {
		return false, denied("only approved requests can be reconciled")
	}
	return r.apply(ctx, rec, actor.ID)
}

// ReconcileAll walks every approved record of the request type and applies
// missing side-effects. Per-record failures are collected, not returned.
func (r *Reconciler) ReconcileAll(ctx context.Context, requestType workflow.RequestType, actor entity.Actor) (*ReconcileReport, error) {
	if !actor.HasRole(workflow.RoleAdmin) {
		return nil, denied(policy.ReasonInsufficientRole)
	}
	def, err := r.registry.Get(requestType)
	if err != nil {
		return nil, denied(err.Error())
	}
	stage := def.TerminalApprovedStage()

	recs, err := r.requests.List(ctx, port.RequestFilter{
		RequestType: requestType,
		AllGroups:   true,
		Stages:      []workflow.StageID{workflow.StageApproved},
	})
	if err != nil {
		return nil, unavailable("list approved requests", err)
	}

	report := &ReconcileReport{Failed: make(map[string]error)}
	if !r.effects.Has(requestType, stage) {
		return report, nil
	}
	for _, rec := range recs {
		report.Checked++
		done, err := r.log.WasApplied(ctx, rec.ID, stage)
		if err != nil {
			report.Failed[rec.ID] = unavailable("check side-effect", err)
			continue
		}
		if done {
			continue
		}
		applied, err := r.apply(ctx, rec, actor.ID)
		if err != nil {
			report.Failed[rec.ID] = err
			continue
		}
		if applied {
			report.Applied = append(report.Applied, rec.ID)
		}
	}

	r.logger.Info("Reconciliation finished",
		"request_type", requestType,
		"actor_id", actor.ID,
		"checked", report.Checked,
		"applied", len(report.Applied),
		"failed", len(report.Failed))
	return report, nil
}

func (r *Reconciler) apply(ctx context.Context, rec *entity.RequestRecord, actorID string) (bool, error) {
	def, err := r.registry.Get(rec.RequestType)
	if err != nil {
		return false, denied(err.Error())
	}
	stage := def.TerminalApprovedStage()

	applied, err := r.effects.Apply(ctx, rec, stage, actorID)
	if err != nil {
		r.logger.Warn("Reconciliation failed", "error", err, "request_id", rec.ID, "stage", stage)
		return false, &SideEffectError{RequestID: rec.ID, Stage: stage, Err: err}
	}
	if applied {
		r.logger.Info("Side-effect reconciled", "request_id", rec.ID, "stage", stage, "actor_id", actorID)
	}
	return applied, nil
}
