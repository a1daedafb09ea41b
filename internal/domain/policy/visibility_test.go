package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

func records() []*entity.RequestRecord {
	return []*entity.RequestRecord{
		{ID: "l-ops", RequestType: workflow.RequestTypeLeave, GroupKey: "ops"},
		{ID: "l-sales", RequestType: workflow.RequestTypeLeave, GroupKey: "sales"},
		{ID: "l-hq", RequestType: workflow.RequestTypeLeave, GroupKey: "hq"},
		{ID: "f-ops", RequestType: workflow.RequestTypeFundRequest, GroupKey: "ops"},
		{ID: "f-sales", RequestType: workflow.RequestTypeFundRequest, GroupKey: "sales"},
	}
}

func ids(recs []*entity.RequestRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestVisibleRequests(t *testing.T) {
	leaveDef := workflow.LeaveDefinition()
	fundDef := workflow.FundRequestDefinition()

	tests := []struct {
		name  string
		def   *workflow.Definition
		actor entity.Actor
		want  []string
	}{
		{"admin sees all leave", leaveDef, actor("a", nil, workflow.RoleAdmin), []string{"l-ops", "l-sales", "l-hq"}},
		{"hr sees all leave", leaveDef, actor("h", nil, workflow.RoleHR), []string{"l-ops", "l-sales", "l-hq"}},
		{"hr is group scoped on fund requests", fundDef, actor("h", []string{"sales"}, workflow.RoleHR), []string{"f-sales"}},
		{"hr without groups sees no fund requests", fundDef, actor("h", nil, workflow.RoleHR), []string{}},
		{"approver sees own groups", leaveDef, actor("m", []string{"ops", "hq"}, workflow.RoleApprover), []string{"l-ops", "l-hq"}},
		{"viewer with group", leaveDef, actor("v", []string{"sales"}, workflow.RoleViewer), []string{"l-sales"}},
		{"no groups no oversight", leaveDef, actor("v", nil, workflow.RoleApprover), []string{}},
		{"admin sees all fund requests", fundDef, actor("a", nil, workflow.RoleAdmin), []string{"f-ops", "f-sales"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VisibleRequests(tt.def, tt.actor, records())
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestScopeFor(t *testing.T) {
	def := workflow.LeaveDefinition()

	all := ScopeFor(def, actor("a", []string{"ops"}, workflow.RoleAdmin))
	assert.True(t, all.All)
	assert.Nil(t, all.GroupKeys())
	assert.True(t, all.Contains("anything"))

	scoped := ScopeFor(def, actor("m", []string{"sales", "ops"}, workflow.RoleApprover))
	assert.False(t, scoped.All)
	assert.Equal(t, []string{"ops", "sales"}, scoped.GroupKeys())
	assert.False(t, scoped.Contains("hq"))
	assert.False(t, scoped.IsEmpty())

	assert.True(t, ScopeFor(def, actor("x", nil)).IsEmpty())
}
