package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/policy"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

var testAuth = AuthConfig{JWTSecret: "test-secret-0123456789", Issuer: "approval-engine"}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type mockWorkflow struct {
	submitFunc      func(ctx context.Context, req service.SubmitRequest) (*entity.RequestRecord, error)
	listVisibleFunc func(ctx context.Context, actor entity.Actor, t workflow.RequestType, f service.ListFilter) ([]*entity.RequestRecord, error)
	getFunc         func(ctx context.Context, id string, actor entity.Actor) (*entity.RequestRecord, error)
	historyFunc     func(ctx context.Context, id string, actor entity.Actor) ([]*entity.AuditEntry, error)
	documentFunc    func(ctx context.Context, id string, actor entity.Actor) ([]byte, string, error)
	approveFunc     func(ctx context.Context, id string, actor entity.Actor, opts ...service.ActionOption) (*service.ApprovalResult, error)
	rejectFunc      func(ctx context.Context, id string, actor entity.Actor, reason string, opts ...service.ActionOption) (*entity.RequestRecord, error)
	cancelFunc      func(ctx context.Context, id string, actor entity.Actor, opts ...service.ActionOption) (*entity.RequestRecord, error)
}

func (m *mockWorkflow) Submit(ctx context.Context, req service.SubmitRequest) (*entity.RequestRecord, error) {
	return m.submitFunc(ctx, req)
}

func (m *mockWorkflow) ListVisible(ctx context.Context, actor entity.Actor, t workflow.RequestType, f service.ListFilter) ([]*entity.RequestRecord, error) {
	return m.listVisibleFunc(ctx, actor, t, f)
}

func (m *mockWorkflow) Get(ctx context.Context, id string, actor entity.Actor) (*entity.RequestRecord, error) {
	return m.getFunc(ctx, id, actor)
}

func (m *mockWorkflow) History(ctx context.Context, id string, actor entity.Actor) ([]*entity.AuditEntry, error) {
	return m.historyFunc(ctx, id, actor)
}

func (m *mockWorkflow) Document(ctx context.Context, id string, actor entity.Actor) ([]byte, string, error) {
	return m.documentFunc(ctx, id, actor)
}

func (m *mockWorkflow) Approve(ctx context.Context, id string, actor entity.Actor, opts ...service.ActionOption) (*service.ApprovalResult, error) {
	return m.approveFunc(ctx, id, actor, opts...)
}

func (m *mockWorkflow) Reject(ctx context.Context, id string, actor entity.Actor, reason string, opts ...service.ActionOption) (*entity.RequestRecord, error) {
	return m.rejectFunc(ctx, id, actor, reason, opts...)
}

func (m *mockWorkflow) Cancel(ctx context.Context, id string, actor entity.Actor, opts ...service.ActionOption) (*entity.RequestRecord, error) {
	return m.cancelFunc(ctx, id, actor, opts...)
}

type mockActors struct {
	actors map[string]entity.Actor
	err    error
}

func (m *mockActors) Resolve(ctx context.Context, actorID string) (entity.Actor, error) {
	if m.err != nil {
		return entity.Actor{}, m.err
	}
	if a, ok := m.actors[actorID]; ok {
		return a, nil
	}
	return entity.NewActor(actorID, nil, nil), nil
}

func newTestServer(wf service.WorkflowService, actors ActorSource, ping func(context.Context) error) *Server {
	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	return NewServer(cfg, Dependencies{
		Workflow: wf,
		Export:   service.NewExportService(wf, workflow.DefaultRegistry(), nil),
		Actors:   actors,
		Auth:     testAuth,
		Ping:     ping,
	}, nopLogger{})
}

func token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := IssueToken(testAuth, subject, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, s *Server, method, path, subject string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, subject))
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(&mockWorkflow{}, &mockActors{}, nil)
	rec := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s = newTestServer(&mockWorkflow{}, &mockActors{}, func(context.Context) error { return errors.New("db down") })
	rec = do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	wf := &mockWorkflow{
		getFunc: func(ctx context.Context, id string, actor entity.Actor) (*entity.RequestRecord, error) {
			return &entity.RequestRecord{ID: id}, nil
		},
	}
	s := newTestServer(wf, &mockActors{}, nil)

	send := func(authz string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/r-1", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		return rec.Code
	}

	expired, err := IssueToken(testAuth, "emp-1", -time.Minute, time.Now())
	require.NoError(t, err)
	otherIssuer, err := IssueToken(AuthConfig{JWTSecret: testAuth.JWTSecret, Issuer: "elsewhere"}, "emp-1", time.Hour, time.Now())
	require.NoError(t, err)
	otherSecret, err := IssueToken(AuthConfig{JWTSecret: "another-secret-012345", Issuer: testAuth.Issuer}, "emp-1", time.Hour, time.Now())
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusUnauthorized, send("Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, send("Bearer not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, send("Bearer "+expired))
	assert.Equal(t, http.StatusUnauthorized, send("Bearer "+otherIssuer))
	assert.Equal(t, http.StatusUnauthorized, send("Bearer "+otherSecret))
	assert.Equal(t, http.StatusOK, send("Bearer "+token(t, "emp-1")))

	down := newTestServer(wf, &mockActors{err: fmt.Errorf("%w: roles: boom", service.ErrStorageUnavailable)}, nil)
	rec := do(t, down, http.MethodGet, "/api/v1/requests/r-1", "emp-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitRequest_UsesAuthenticatedSubmitter(t *testing.T) {
	var got service.SubmitRequest
	wf := &mockWorkflow{
		submitFunc: func(ctx context.Context, req service.SubmitRequest) (*entity.RequestRecord, error) {
			got = req
			return &entity.RequestRecord{ID: "r-1", SubmittedBy: req.SubmittedBy, CurrentStage: workflow.StageManagerReview}, nil
		},
	}
	s := newTestServer(wf, &mockActors{}, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/requests", "emp-1", map[string]interface{}{
		"request_type": "leave",
		"group_key":    "ops",
		"submitted_by": "someone-else",
		"payload":      map[string]interface{}{"category": "SIL", "days": 2},
		"attachment":   map[string]interface{}{"name": "note.pdf", "content": []byte("%PDF")},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "emp-1", got.SubmittedBy)
	assert.Equal(t, workflow.RequestTypeLeave, got.RequestType)
	assert.Equal(t, "ops", got.GroupKey)
	require.NotNil(t, got.Attachment)
	assert.Equal(t, []byte("%PDF"), got.Attachment.Content)

	rec = do(t, s, http.MethodPost, "/api/v1/requests", "emp-1", map[string]interface{}{"group_key": "ops"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveRequest_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"insufficient role", &service.DeniedError{Reason: policy.ReasonInsufficientRole}, http.StatusForbidden, policy.ReasonInsufficientRole},
		{"stale", &service.DeniedError{Reason: policy.ReasonStaleStage}, http.StatusConflict, policy.ReasonStaleStage},
		{"not found", service.ErrNotFound, http.StatusNotFound, "request not found"},
		{"unavailable", fmt.Errorf("%w: load: disk", service.ErrStorageUnavailable), http.StatusServiceUnavailable, "storage unavailable"},
		{"side-effect", &service.SideEffectError{RequestID: "r-1", Stage: workflow.StageHRReview, Err: errors.New("ledger down")}, http.StatusBadGateway, "side-effect failed; retry reconciliation later"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &mockWorkflow{
				approveFunc: func(ctx context.Context, id string, actor entity.Actor, opts ...service.ActionOption) (*service.ApprovalResult, error) {
					return nil, tt.err
				},
			}
			rec := do(t, newTestServer(wf, &mockActors{}, nil), http.MethodPost, "/api/v1/requests/r-1/approve", "mgr", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode(t, rec).Error)
		})
	}
}

func TestApproveRequest_SideEffectWarning(t *testing.T) {
	var optCount int
	wf := &mockWorkflow{
		approveFunc: func(ctx context.Context, id string, actor entity.Actor, opts ...service.ActionOption) (*service.ApprovalResult, error) {
			optCount = len(opts)
			return &service.ApprovalResult{
				Record:        &entity.RequestRecord{ID: id, CurrentStage: workflow.StageApproved},
				SideEffectErr: &service.SideEffectError{RequestID: id, Stage: workflow.StageHRReview, Err: errors.New("ledger down")},
			}, nil
		},
	}
	s := newTestServer(wf, &mockActors{}, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/requests/r-1/approve", "hr", ActionBody{Notes: "ok", ExpectedStage: "hr_review"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Warning)
	assert.Equal(t, 2, optCount)
}

type mockReconciler struct {
	reconcileFunc func(ctx context.Context, id string, actor entity.Actor) (bool, error)
}

func (m *mockReconciler) Reconcile(ctx context.Context, id string, actor entity.Actor) (bool, error) {
	return m.reconcileFunc(ctx, id, actor)
}

func TestReconcileRequest(t *testing.T) {
	t.Run("disabled without a reconciler", func(t *testing.T) {
		rec := do(t, newTestServer(&mockWorkflow{}, &mockActors{}, nil), http.MethodPost, "/api/v1/requests/r-1/reconcile", "root", nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	var gotActor string
	reconciler := &mockReconciler{
		reconcileFunc: func(ctx context.Context, id string, actor entity.Actor) (bool, error) {
			gotActor = actor.ID
			if id == "denied" {
				return false, &service.DeniedError{Reason: policy.ReasonInsufficientRole}
			}
			return true, nil
		},
	}
	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	s := NewServer(cfg, Dependencies{
		Workflow:   &mockWorkflow{},
		Actors:     &mockActors{},
		Auth:       testAuth,
		Reconciler: reconciler,
	}, nopLogger{})

	rec := do(t, s, http.MethodPost, "/api/v1/requests/r-1/reconcile", "root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "root", gotActor)
	data := decode(t, rec).Data.(map[string]interface{})
	assert.Equal(t, true, data["side_effect_applied"])

	rec = do(t, s, http.MethodPost, "/api/v1/requests/denied/reconcile", "mgr", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRejectAndCancel(t *testing.T) {
	var gotReason, gotActor string
	wf := &mockWorkflow{
		rejectFunc: func(ctx context.Context, id string, actor entity.Actor, reason string, opts ...service.ActionOption) (*entity.RequestRecord, error) {
			gotReason = reason
			return &entity.RequestRecord{ID: id, CurrentStage: workflow.StageRejected}, nil
		},
		cancelFunc: func(ctx context.Context, id string, actor entity.Actor, opts ...service.ActionOption) (*entity.RequestRecord, error) {
			gotActor = actor.ID
			return &entity.RequestRecord{ID: id, CurrentStage: workflow.StageCancelled}, nil
		},
	}
	s := newTestServer(wf, &mockActors{}, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/requests/r-1/reject", "mgr", ActionBody{Reason: "overlaps audit week"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "overlaps audit week", gotReason)

	rec = do(t, s, http.MethodPost, "/api/v1/requests/r-1/cancel", "emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "emp-1", gotActor)
}

func TestListRequests_Query(t *testing.T) {
	var (
		gotType   workflow.RequestType
		gotFilter service.ListFilter
		gotActor  entity.Actor
	)
	wf := &mockWorkflow{
		listVisibleFunc: func(ctx context.Context, actor entity.Actor, rt workflow.RequestType, f service.ListFilter) ([]*entity.RequestRecord, error) {
			gotActor, gotType, gotFilter = actor, rt, f
			return []*entity.RequestRecord{}, nil
		},
	}
	mgr := entity.NewActor("mgr", []workflow.Role{workflow.RoleApprover}, []string{"ops"})
	s := newTestServer(wf, &mockActors{actors: map[string]entity.Actor{"mgr": mgr}}, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/requests?type=leave&stage=Manager_Review,HR_REVIEW&stage=approved&from=2026-03-01&to=2026-03-31&limit=500", "mgr", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, workflow.RequestTypeLeave, gotType)
	assert.True(t, gotActor.InGroup("ops"))
	assert.Equal(t, []workflow.StageID{workflow.StageManagerReview, workflow.StageHRReview, workflow.StageApproved}, gotFilter.Stages)
	assert.Equal(t, defaultListLimit, gotFilter.Limit)
	require.NotNil(t, gotFilter.From)
	require.NotNil(t, gotFilter.To)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *gotFilter.From)
	assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC), *gotFilter.To)

	rec = do(t, s, http.MethodGet, "/api/v1/requests", "mgr", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/requests?type=leave&from=yesterday", "mgr", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportRequests(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	wf := &mockWorkflow{
		listVisibleFunc: func(ctx context.Context, actor entity.Actor, rt workflow.RequestType, f service.ListFilter) ([]*entity.RequestRecord, error) {
			return []*entity.RequestRecord{{
				ID: "r-1", RequestType: workflow.RequestTypeLeave, SubmittedBy: "emp-1", SubmittedAt: now,
				CurrentStage: workflow.StageHRReview, GroupKey: "ops", UpdatedAt: now,
			}}, nil
		},
		historyFunc: func(ctx context.Context, id string, actor entity.Actor) ([]*entity.AuditEntry, error) {
			return []*entity.AuditEntry{{RequestID: id, StageID: workflow.StageManagerReview, ActorID: "emp-1", Action: workflow.ActionSubmitted, Timestamp: now}}, nil
		},
	}
	s := newTestServer(wf, &mockActors{}, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/export?type=leave", "hr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "leave-")

	file, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer file.Close()
	id, err := file.GetCellValue("Requests", "A2")
	require.NoError(t, err)
	assert.Equal(t, "r-1", id)

	rec = do(t, s, http.MethodGet, "/api/v1/export?type=payroll", "hr", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportRequests_NotPaged(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var limits []int
	wf := &mockWorkflow{
		listVisibleFunc: func(ctx context.Context, actor entity.Actor, rt workflow.RequestType, f service.ListFilter) ([]*entity.RequestRecord, error) {
			limits = append(limits, f.Limit)
			n := 120
			if f.Limit > 0 && f.Limit < n {
				n = f.Limit
			}
			recs := make([]*entity.RequestRecord, 0, n)
			for i := 0; i < n; i++ {
				recs = append(recs, &entity.RequestRecord{
					ID: fmt.Sprintf("r-%03d", i), RequestType: workflow.RequestTypeLeave, SubmittedBy: "emp-1",
					SubmittedAt: now, CurrentStage: workflow.StageManagerReview, GroupKey: "ops", UpdatedAt: now,
				})
			}
			return recs, nil
		},
		historyFunc: func(ctx context.Context, id string, actor entity.Actor) ([]*entity.AuditEntry, error) {
			return nil, nil
		},
	}
	s := newTestServer(wf, &mockActors{}, nil)

	rowsOf := func(rec *httptest.ResponseRecorder) int {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code)
		file, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer file.Close()
		rows, err := file.GetRows("Requests")
		require.NoError(t, err)
		return len(rows) - 1
	}

	assert.Equal(t, 120, rowsOf(do(t, s, http.MethodGet, "/api/v1/export?type=leave", "hr", nil)))
	assert.Equal(t, 30, rowsOf(do(t, s, http.MethodGet, "/api/v1/export?type=leave&limit=30", "hr", nil)))
	assert.Equal(t, []int{0, 30}, limits)
}

func TestGetDocument(t *testing.T) {
	wf := &mockWorkflow{
		documentFunc: func(ctx context.Context, id string, actor entity.Actor) ([]byte, string, error) {
			switch id {
			case "r-1":
				return []byte("%PDF-1.7"), "r-1/medcert.pdf", nil
			case "r-2":
				return nil, "", &service.DeniedError{Reason: policy.ReasonOutOfScope}
			default:
				return nil, "", fmt.Errorf("%w: %s", service.ErrNotFound, id)
			}
		},
	}
	s := newTestServer(wf, &mockActors{}, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/requests/r-1/document", "emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="medcert.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/v1/requests/r-2/document", "emp-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/requests/r-3/document", "emp-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseToken(t *testing.T) {
	tok := token(t, "emp-9")
	subject, err := ParseToken(testAuth, tok)
	require.NoError(t, err)
	assert.Equal(t, "emp-9", subject)

	_, err = ParseToken(AuthConfig{}, tok)
	assert.Error(t, err)

	_, err = IssueToken(testAuth, " ", time.Hour, time.Now())
	assert.Error(t, err)
}
