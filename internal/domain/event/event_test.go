package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

func sampleTransition() Transition {
	return Transition{
		RequestID:   "req-1",
		RequestType: workflow.RequestTypeLeave,
		Stage:       "manager_review",
		ResultStage: "hr_review",
		ActorID:     "m1",
	}
}

func TestType_IsValid(t *testing.T) {
	for _, tt := range []Type{
		TypeRequestSubmitted,
		TypeRequestAdvanced,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestCancelled,
		TypeSideEffectApplied,
		TypeSideEffectFailed,
	} {
		assert.True(t, tt.IsValid(), tt.String())
	}
	assert.False(t, Type("instance.created").IsValid())
	assert.False(t, Type("").IsValid())
}

func TestTypeFor(t *testing.T) {
	tests := []struct {
		name   string
		action workflow.Action
		result workflow.StageID
		want   Type
	}{
		{"submit", workflow.ActionSubmitted, "manager_review", TypeRequestSubmitted},
		{"intermediate approval", workflow.ActionApproved, "hr_review", TypeRequestAdvanced},
		{"terminal approval", workflow.ActionApproved, workflow.StageApproved, TypeRequestApproved},
		{"reject", workflow.ActionRejected, workflow.StageRejected, TypeRequestRejected},
		{"cancel", workflow.ActionCancelled, workflow.StageCancelled, TypeRequestCancelled},
		{"unknown", workflow.Action("escalated"), "x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeFor(tt.action, tt.result))
		})
	}
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	evt := NewEvent(TypeRequestAdvanced, sampleTransition(), at)

	require.NotEmpty(t, evt.ID)
	assert.Equal(t, evt.ID, evt.CorrelationID)
	assert.Equal(t, TypeRequestAdvanced, evt.Type)
	assert.Equal(t, "req-1", evt.RequestID)
	assert.Equal(t, workflow.RequestTypeLeave, evt.RequestType)
	assert.Equal(t, workflow.StageID("manager_review"), evt.Stage)
	assert.Equal(t, workflow.StageID("hr_review"), evt.ResultStage)
	assert.Equal(t, "m1", evt.ActorID)
	assert.Equal(t, at, evt.Timestamp)
	assert.Nil(t, evt.Payload)

	other := NewEvent(TypeRequestAdvanced, sampleTransition(), at)
	assert.NotEqual(t, evt.ID, other.ID)
}

func TestEvent_Follow(t *testing.T) {
	at := time.Now()
	root := NewEvent(TypeRequestApproved, sampleTransition(), at)
	next := root.Follow(TypeSideEffectApplied, at.Add(time.Second))

	assert.NotEqual(t, root.ID, next.ID)
	assert.Equal(t, root.CorrelationID, next.CorrelationID)
	assert.Equal(t, TypeSideEffectApplied, next.Type)
	assert.Equal(t, root.RequestID, next.RequestID)
	assert.Equal(t, root.Stage, next.Stage)
}

func TestEvent_WithPayload(t *testing.T) {
	base := NewEvent(TypeSideEffectApplied, sampleTransition(), time.Now()).
		WithPayload("credit_kind", "VL")
	withBalance := base.WithPayload("balance", 7.5)

	assert.Equal(t, "VL", withBalance.GetPayloadString("credit_kind"))
	assert.Equal(t, 7.5, withBalance.GetPayloadFloat("balance"))

	_, ok := base.Payload["balance"]
	assert.False(t, ok, "original payload must not change")
	assert.Equal(t, base.ID, withBalance.ID)
}

func TestEvent_PayloadAccessors(t *testing.T) {
	evt := NewEvent(TypeSideEffectFailed, sampleTransition(), time.Now()).
		WithPayload("error", "ledger down").
		WithPayload("count", 3).
		WithPayload("big", int64(9))

	assert.Equal(t, "ledger down", evt.GetPayloadString("error"))
	assert.Equal(t, "", evt.GetPayloadString("count"))
	assert.Equal(t, "", evt.GetPayloadString("missing"))
	assert.Equal(t, 3.0, evt.GetPayloadFloat("count"))
	assert.Equal(t, 9.0, evt.GetPayloadFloat("big"))
	assert.Equal(t, 0.0, evt.GetPayloadFloat("error"))
}
