package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/domain/policy"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// rollbackEffects makes the mock transaction undo effect-log marks on error
func rollbackEffects(env *testEnv) {
	env.tx.withTransactionFunc = func(ctx context.Context, fn func(ctx context.Context) error) error {
		before := env.effects.snapshot()
		err := fn(ctx)
		if err != nil {
			env.effects.restore(before)
		}
		return err
	}
}

func newReconciler(env *testEnv) *Reconciler {
	registry := workflow.DefaultRegistry()
	trail := NewAuditTrail(env.audits)
	fx := NewSideEffectRegistry(trail, env.effects, env.tx)
	_ = RegisterDefaultSideEffects(fx, registry, env.ledger)
	return NewReconciler(registry, env.requests, fx, env.effects, nil)
}

func (env *testEnv) approveLeaveFully(t *testing.T, id string) *ApprovalResult {
	t.Helper()
	hr := newActor("hr", nil, workflow.RoleHR)
	_, err := env.svc.Approve(context.Background(), id, hr)
	require.NoError(t, err)
	res, err := env.svc.Approve(context.Background(), id, hr)
	require.NoError(t, err)
	return res
}

func TestReconciler_RetriesFailedDeduction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rollbackEffects(env)
	require.NoError(t, env.ledger.SetBalance(ctx, "emp-1", "SIL", 10))
	rec := env.submitLeave(t, "emp-1", "ops", 4)

	env.ledger.debitErr = errors.New("ledger offline")
	res := env.approveLeaveFully(t, rec.ID)
	require.Error(t, res.SideEffectErr)

	applied, err := env.effects.WasApplied(ctx, rec.ID, workflow.StageHRReview)
	require.NoError(t, err)
	assert.False(t, applied, "failed effect must not be marked")

	env.ledger.debitErr = nil
	admin := newActor("root", nil, workflow.RoleAdmin)
	r := newReconciler(env)

	ran, err := r.Reconcile(ctx, rec.ID, admin)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = r.Reconcile(ctx, rec.ID, admin)
	require.NoError(t, err)
	assert.False(t, ran, "second reconcile is a no-op")

	balance, err := env.ledger.CurrentBalance(ctx, "emp-1", "SIL")
	require.NoError(t, err)
	assert.Equal(t, 6.0, balance)
}

func TestReconciler_Reconcile_Denials(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	r := newReconciler(env)
	rec := env.submitLeave(t, "emp-1", "ops", 1)

	_, err := r.Reconcile(ctx, rec.ID, newActor("hr", nil, workflow.RoleHR))
	assertDenied(t, err, policy.ReasonInsufficientRole)

	admin := newActor("root", nil, workflow.RoleAdmin)
	_, err = r.Reconcile(ctx, rec.ID, admin)
	assertDenied(t, err, "only approved requests can be reconciled")

	_, err = r.Reconcile(ctx, "missing", admin)
	assert.ErrorIs(t, err, ErrNotFound)

	env.requests.getErr = errors.New("db down")
	_, err = r.Reconcile(ctx, rec.ID, admin)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestReconciler_ReconcileAll(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rollbackEffects(env)
	require.NoError(t, env.ledger.SetBalance(ctx, "emp-1", "SIL", 10))
	require.NoError(t, env.ledger.SetBalance(ctx, "emp-2", "SIL", 10))

	ok := env.submitLeave(t, "emp-1", "ops", 1)
	env.approveLeaveFully(t, ok.ID)

	env.ledger.debitErr = errors.New("ledger offline")
	missed := env.submitLeave(t, "emp-2", "sales", 2)
	env.approveLeaveFully(t, missed.ID)
	pending := env.submitLeave(t, "emp-2", "sales", 3)
	env.ledger.debitErr = nil

	admin := newActor("root", nil, workflow.RoleAdmin)
	report, err := newReconciler(env).ReconcileAll(ctx, workflow.RequestTypeLeave, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, []string{missed.ID}, report.Applied)
	assert.Empty(t, report.Failed)
	assert.Equal(t, workflow.StageManagerReview, env.requests.stageOf(pending.ID))

	balance, err := env.ledger.CurrentBalance(ctx, "emp-2", "SIL")
	require.NoError(t, err)
	assert.Equal(t, 8.0, balance)

	_, err = newReconciler(env).ReconcileAll(ctx, workflow.RequestTypeLeave, newActor("v", nil))
	assertDenied(t, err, policy.ReasonInsufficientRole)
	_, err = newReconciler(env).ReconcileAll(ctx, workflow.RequestType("travel"), admin)
	_, isDenied := IsDenied(err)
	assert.True(t, isDenied)
}

func TestReconciler_ReconcileAllCollectsFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rollbackEffects(env)
	env.ledger.debitErr = errors.New("ledger offline")
	rec := env.submitLeave(t, "emp-1", "ops", 1)
	env.approveLeaveFully(t, rec.ID)

	report, err := newReconciler(env).ReconcileAll(ctx, workflow.RequestTypeLeave, newActor("root", nil, workflow.RoleAdmin))
	require.NoError(t, err)
	require.Contains(t, report.Failed, rec.ID)
	var sideErr *SideEffectError
	assert.ErrorAs(t, report.Failed[rec.ID], &sideErr)
	assert.Empty(t, report.Applied)
}
