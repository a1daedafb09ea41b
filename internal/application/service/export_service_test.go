package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

func TestExportService_Export(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	opsRec := env.submitLeave(t, "emp-ops", "ops", 2)
	env.submitLeave(t, "emp-sales", "sales", 1)

	mgr := newActor("mgr", []string{"ops"}, workflow.RoleApprover)
	_, err := env.svc.Approve(ctx, opsRec.ID, mgr)
	require.NoError(t, err)

	exporter := NewExportService(env.svc, workflow.DefaultRegistry(), nil)
	var buf bytes.Buffer
	require.NoError(t, exporter.Export(ctx, mgr, workflow.RequestTypeLeave, ListFilter{}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Requests", "Audit"}, f.GetSheetList())

	rows, err := f.GetRows("Requests")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus the one visible request")
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, opsRec.ID, rows[1][0])
	assert.Equal(t, "hr_review", rows[1][2])

	audit, err := f.GetRows("Audit")
	require.NoError(t, err)
	require.Len(t, audit, 3)
	assert.Equal(t, "submitted", audit[1][4])
	assert.Equal(t, "approved", audit[2][4])
}

func TestExportService_UnknownType(t *testing.T) {
	env := newTestEnv(t)
	exporter := NewExportService(env.svc, workflow.DefaultRegistry(), nil)

	err := exporter.Export(context.Background(), newActor("a", nil, workflow.RoleAdmin), "travel", ListFilter{}, &bytes.Buffer{})
	_, denied := IsDenied(err)
	assert.True(t, denied)
}
