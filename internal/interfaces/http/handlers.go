package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Reconciler re-applies a failed terminal side-effect
type Reconciler interface {
	Reconcile(ctx context.Context, requestID string, actor entity.Actor) (bool, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflow   service.WorkflowService
	export     *service.ExportService
	reconciler Reconciler
	ping       func(ctx context.Context) error
	logger     Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(wf service.WorkflowService, export *service.ExportService, ping func(ctx context.Context) error, logger Logger) *Handlers {
	return &Handlers{
		workflow: wf,
		export:   export,
		ping:     ping,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Warning string      `json:"warning,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Storage   string `json:"storage"`
}

// SubmitBody is the payload of POST /api/v1/requests.
// The submitter is always the authenticated actor.
type SubmitBody struct {
	RequestType string          `json:"request_type" binding:"required"`
	GroupKey    string          `json:"group_key"`
	Payload     json.RawMessage `json:"payload"`
	Attachment  *AttachmentBody `json:"attachment,omitempty"`
}

// AttachmentBody carries a base64 encoded document
type AttachmentBody struct {
	Name    string `json:"name" binding:"required"`
	Content []byte `json:"content"`
}

// ActionBody is the payload of approve, reject and cancel.
// ExpectedStage pins the stage the caller saw; a moved record is a conflict.
type ActionBody struct {
	Notes         string `json:"notes"`
	Reason        string `json:"reason"`
	ExpectedStage string `json:"expected_stage"`
}

// ApprovalResponse is returned by approve
type ApprovalResponse struct {
	Request           *entity.RequestRecord `json:"request"`
	SideEffectApplied bool                  `json:"side_effect_applied"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Storage:   "ok",
	}
	status := http.StatusOK

	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			resp.Status = "degraded"
			resp.Storage = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// SubmitRequest handles POST /api/v1/requests
func (h *Handlers) SubmitRequest(c *gin.Context) {
	actor, _ := actorFrom(c)

	var body SubmitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body"})
		return
	}

	req := service.SubmitRequest{
		RequestType: workflow.RequestType(body.RequestType),
		SubmittedBy: actor.ID,
		GroupKey:    body.GroupKey,
		Payload:     body.Payload,
	}
	if body.Attachment != nil {
		req.Attachment = &service.Attachment{Name: body.Attachment.Name, Content: body.Attachment.Content}
	}

	rec, err := h.workflow.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "submit", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: rec})
}

// ListRequests handles GET /api/v1/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	actor, _ := actorFrom(c)

	requestType, filter, err := parseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	recs, err := h.workflow.ListVisible(c.Request.Context(), actor, requestType, filter)
	if err != nil {
		respondError(c, h.logger, "list", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: recs})
}

// GetRequest handles GET /api/v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	actor, _ := actorFrom(c)

	rec, err := h.workflow.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, h.logger, "get", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

// GetHistory handles GET /api/v1/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	actor, _ := actorFrom(c)

	entries, err := h.workflow.History(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, h.logger, "history", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// GetDocument handles GET /api/v1/requests/:id/document
func (h *Handlers) GetDocument(c *gin.Context) {
	actor, _ := actorFrom(c)

	content, ref, err := h.workflow.Document(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, h.logger, "document", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, path.Base(ref)))
	c.Data(http.StatusOK, "application/octet-stream", content)
}

// ApproveRequest handles POST /api/v1/requests/:id/approve
func (h *Handlers) ApproveRequest(c *gin.Context) {
	actor, _ := actorFrom(c)
	body, ok := bindAction(c)
	if !ok {
		return
	}

	result, err := h.workflow.Approve(c.Request.Context(), c.Param("id"), actor, actionOptions(body)...)
	if err != nil {
		respondError(c, h.logger, "approve", err)
		return
	}

	resp := Response{
		Success: true,
		Data:    ApprovalResponse{Request: result.Record, SideEffectApplied: result.SideEffectApplied},
	}
	if result.SideEffectErr != nil {
		resp.Warning = "approval recorded but its side-effect failed; reconcile manually"
	}
	c.JSON(http.StatusOK, resp)
}

// RejectRequest handles POST /api/v1/requests/:id/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	actor, _ := actorFrom(c)
	body, ok := bindAction(c)
	if !ok {
		return
	}

	rec, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), actor, body.Reason, actionOptions(body)...)
	if err != nil {
		respondError(c, h.logger, "reject", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

// CancelRequest handles POST /api/v1/requests/:id/cancel
func (h *Handlers) CancelRequest(c *gin.Context) {
	actor, _ := actorFrom(c)
	body, ok := bindAction(c)
	if !ok {
		return
	}

	rec, err := h.workflow.Cancel(c.Request.Context(), c.Param("id"), actor, actionOptions(body)...)
	if err != nil {
		respondError(c, h.logger, "cancel", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

// ReconcileRequest handles POST /api/v1/requests/:id/reconcile
func (h *Handlers) ReconcileRequest(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusNotImplemented, Response{Error: "reconciliation is not enabled"})
		return
	}
	actor, _ := actorFrom(c)

	applied, err := h.reconciler.Reconcile(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, h.logger, "reconcile", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"request_id": c.Param("id"), "side_effect_applied": applied}})
}

// ExportRequests handles GET /api/v1/export
func (h *Handlers) ExportRequests(c *gin.Context) {
	actor, _ := actorFrom(c)

	requestType, filter, err := parseExportQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := h.export.Export(c.Request.Context(), actor, requestType, filter, &buf); err != nil {
		respondError(c, h.logger, "export", err)
		return
	}

	filename := fmt.Sprintf("%s-%s.xlsx", requestType, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// bindAction reads an optional JSON body. An empty body is allowed.
func bindAction(c *gin.Context) (ActionBody, bool) {
	var body ActionBody
	if c.Request.ContentLength == 0 {
		return body, true
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body"})
		return body, false
	}
	return body, true
}

func actionOptions(body ActionBody) []service.ActionOption {
	var opts []service.ActionOption
	if body.Notes != "" {
		opts = append(opts, service.WithNotes(body.Notes))
	}
	if stage := workflow.ParseStageID(body.ExpectedStage); stage != "" {
		opts = append(opts, service.AtStage(stage))
	}
	return opts
}

// listQuery represents query parameters for listing and export
type listQuery struct {
	Type        string `form:"type"`
	SubmittedBy string `form:"submitted_by"`
	From        string `form:"from"`
	To          string `form:"to"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}

// parseListQuery reads the listing query and applies the page defaults
func parseListQuery(c *gin.Context) (workflow.RequestType, service.ListFilter, error) {
	requestType, filter, err := parseFilterQuery(c)
	if err != nil {
		return "", service.ListFilter{}, err
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = defaultListLimit
	}
	return requestType, filter, nil
}

// parseExportQuery reads the same filters as parseListQuery. The export
// covers every visible record unless the caller asks for a page.
func parseExportQuery(c *gin.Context) (workflow.RequestType, service.ListFilter, error) {
	requestType, filter, err := parseFilterQuery(c)
	if err != nil {
		return "", service.ListFilter{}, err
	}
	if filter.Limit < 0 {
		filter.Limit = 0
	}
	return requestType, filter, nil
}

func parseFilterQuery(c *gin.Context) (workflow.RequestType, service.ListFilter, error) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return "", service.ListFilter{}, fmt.Errorf("invalid query parameters")
	}
	if q.Type == "" {
		return "", service.ListFilter{}, fmt.Errorf("type is required")
	}

	filter := service.ListFilter{
		SubmittedBy: q.SubmittedBy,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	for _, raw := range c.QueryArray("stage") {
		for _, s := range strings.Split(raw, ",") {
			if stage := workflow.ParseStageID(s); stage != "" {
				filter.Stages = append(filter.Stages, stage)
			}
		}
	}

	var err error
	if filter.From, err = parseTimeParam(q.From, false); err != nil {
		return "", service.ListFilter{}, fmt.Errorf("invalid from: %w", err)
	}
	if filter.To, err = parseTimeParam(q.To, true); err != nil {
		return "", service.ListFilter{}, fmt.Errorf("invalid to: %w", err)
	}

	return workflow.RequestType(q.Type), filter, nil
}

// parseTimeParam accepts RFC3339 or a date. A date used as an upper
// bound covers the whole day.
func parseTimeParam(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("expected RFC3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
