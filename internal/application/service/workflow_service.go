package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/policy"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Attachment is an optional document submitted with a leave request
type Attachment struct {
	Name    string
	Content []byte
}

// SubmitRequest carries the input of Submit
type SubmitRequest struct {
	RequestType workflow.RequestType
	SubmittedBy string
	GroupKey    string
	Payload     json.RawMessage
	Attachment  *Attachment
}

// ListFilter narrows ListVisible. It never widens the actor's visibility.
type ListFilter struct {
	Stages      []workflow.StageID
	SubmittedBy string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// ApprovalResult is the outcome of a successful approval.
// SideEffectErr is set when the terminal approval was recorded but its
// side-effect failed; the approval is not rolled back.
type ApprovalResult struct {
	Record            *entity.RequestRecord
	SideEffectApplied bool
	SideEffectErr     error
}

type actionOptions struct {
	notes         string
	expectedStage workflow.StageID
}

// ActionOption configures Approve, Reject and Cancel
type ActionOption func(*actionOptions)

// WithNotes attaches free-text notes to the audit entry
func WithNotes(notes string) ActionOption {
	return func(o *actionOptions) { o.notes = notes }
}

// AtStage pins the stage the caller acted on. If the record has moved on,
// the call is denied as stale. The stage is compared case-insensitively.
func AtStage(stage workflow.StageID) ActionOption {
	return func(o *actionOptions) { o.expectedStage = workflow.ParseStageID(string(stage)) }
}

// WorkflowService is the facade over approval workflows.
// Denials are returned as *DeniedError.
type WorkflowService interface {
	// Submit creates a record at the initial stage and records a submitted entry
	Submit(ctx context.Context, req SubmitRequest) (*entity.RequestRecord, error)

	// ListVisible returns records of the type the actor may see, newest first
	ListVisible(ctx context.Context, actor entity.Actor, requestType workflow.RequestType, filter ListFilter) ([]*entity.RequestRecord, error)

	// Get returns a single record visible to the actor
	Get(ctx context.Context, requestID string, actor entity.Actor) (*entity.RequestRecord, error)

	// History returns the audit entries of a record visible to the actor
	History(ctx context.Context, requestID string, actor entity.Actor) ([]*entity.AuditEntry, error)

	// Document returns the attachment of a record visible to the actor and its reference
	Document(ctx context.Context, requestID string, actor entity.Actor) ([]byte, string, error)

	// Approve advances the record one stage and runs the terminal side-effect
	Approve(ctx context.Context, requestID string, actor entity.Actor, opts ...ActionOption) (*ApprovalResult, error)

	// Reject closes the record as rejected. The reason is mandatory.
	Reject(ctx context.Context, requestID string, actor entity.Actor, reason string, opts ...ActionOption) (*entity.RequestRecord, error)

	// Cancel closes the record as cancelled. Only the submitter may cancel, before any approval.
	Cancel(ctx context.Context, requestID string, actor entity.Actor, opts ...ActionOption) (*entity.RequestRecord, error)
}

type workflowServiceImpl struct {
	registry    *workflow.Registry
	guard       *policy.Guard
	requestRepo port.RequestRepository
	audit       *AuditTrail
	effects     *SideEffectRegistry
	txManager   port.TransactionManager
	documents   port.DocumentStore
	events      port.EventPublisher
	logger      Logger
	now         func() time.Time
	newID       func() string
}

// ServiceOption configures optional collaborators of the workflow service
type ServiceOption func(*workflowServiceImpl)

// WithEventPublisher publishes a lifecycle event after every committed change
func WithEventPublisher(p port.EventPublisher) ServiceOption {
	return func(s *workflowServiceImpl) { s.events = p }
}

// NewWorkflowService creates a new WorkflowService. documents may be nil when
// attachments are not accepted.
func NewWorkflowService(
	registry *workflow.Registry,
	requestRepo port.RequestRepository,
	audit *AuditTrail,
	effects *SideEffectRegistry,
	txManager port.TransactionManager,
	documents port.DocumentStore,
	logger Logger,
	opts ...ServiceOption,
) WorkflowService {
	if logger == nil {
		logger = nopLogger{}
	}
	s := &workflowServiceImpl{
		registry:    registry,
		guard:       policy.NewGuard(registry),
		requestRepo: requestRepo,
		audit:       audit,
		effects:     effects,
		txManager:   txManager,
		documents:   documents,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request and stores it at the definition's initial stage
func (s *workflowServiceImpl) Submit(ctx context.Context, req SubmitRequest) (*entity.RequestRecord, error) {
	def, err := s.registry.Get(req.RequestType)
	if err != nil {
		return nil, denied(err.Error())
	}
	submittedBy := strings.TrimSpace(req.SubmittedBy)
	if submittedBy == "" {
		return nil, denied("submitter is required")
	}
	groupKey := strings.TrimSpace(req.GroupKey)
	if groupKey == "" {
		return nil, denied("group key is required")
	}
	if err := entity.ValidatePayload(req.RequestType, req.Payload); err != nil {
		return nil, denied(err.Error())
	}
	if req.Attachment != nil && req.RequestType != workflow.RequestTypeLeave {
		return nil, denied("attachments are only accepted for leave requests")
	}

	now := s.now().UTC()
	rec := &entity.RequestRecord{
		ID:           s.newID(),
		RequestType:  req.RequestType,
		SubmittedBy:  submittedBy,
		SubmittedAt:  now,
		CurrentStage: def.InitialStage(),
		GroupKey:     groupKey,
		Payload:      append(json.RawMessage(nil), req.Payload...),
		UpdatedAt:    now,
	}

	if req.Attachment != nil {
		if s.documents == nil {
			return nil, unavailable("store attachment", errors.New("no document store configured"))
		}
		ref, err := s.documents.Put(ctx, rec.ID, req.Attachment.Name, req.Attachment.Content)
		if err != nil {
			s.logger.Error("Failed to store attachment", "error", err, "request_id", rec.ID)
			return nil, unavailable("store attachment", err)
		}
		rec.DocumentRef = ref
	}

	entry := &entity.AuditEntry{
		RequestID:   rec.ID,
		StageID:     rec.CurrentStage,
		ResultStage: rec.CurrentStage,
		ActorID:     submittedBy,
		Action:      workflow.ActionSubmitted,
		Timestamp:   now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.Create(txCtx, rec); err != nil {
			return unavailable("create request", err)
		}
		return s.audit.Append(txCtx, entry)
	})
	if err != nil {
		s.logger.Error("Failed to submit request",
			"error", err,
			"request_type", req.RequestType,
			"submitted_by", submittedBy)
		if rec.DocumentRef != "" {
			s.discardAttachment(ctx, rec.ID)
		}
		return nil, storageError("submit request", err)
	}

	s.logger.Info("Request submitted",
		"request_id", rec.ID,
		"request_type", rec.RequestType,
		"submitted_by", rec.SubmittedBy,
		"group_key", rec.GroupKey,
		"stage", rec.CurrentStage)
	s.publish(ctx, event.NewEvent(event.TypeRequestSubmitted, transitionOf(rec, entry), now))
	return rec, nil
}

// ListVisible pushes the actor's scope and the caller's filters down to the
// repository, then re-applies the scope to the result
func (s *workflowServiceImpl) ListVisible(ctx context.Context, actor entity.Actor, requestType workflow.RequestType, filter ListFilter) ([]*entity.RequestRecord, error) {
	def, err := s.registry.Get(requestType)
	if err != nil {
		return nil, denied(err.Error())
	}

	scope := policy.ScopeFor(def, actor)
	if scope.IsEmpty() {
		return []*entity.RequestRecord{}, nil
	}

	recs, err := s.requestRepo.List(ctx, port.RequestFilter{
		RequestType:   requestType,
		GroupKeys:     scope.GroupKeys(),
		AllGroups:     scope.All,
		Stages:        filter.Stages,
		SubmittedBy:   strings.TrimSpace(filter.SubmittedBy),
		SubmittedFrom: filter.From,
		SubmittedTo:   filter.To,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	})
	if err != nil {
		s.logger.Error("Failed to list requests", "error", err, "request_type", requestType, "actor_id", actor.ID)
		return nil, unavailable("list requests", err)
	}

	return policy.VisibleRequests(def, actor, recs), nil
}

// Get returns the record if the actor submitted it or it is within the actor's scope
func (s *workflowServiceImpl) Get(ctx context.Context, requestID string, actor entity.Actor) (*entity.RequestRecord, error) {
	rec, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(rec, actor); err != nil {
		return nil, err
	}
	return rec, nil
}

// History returns the audit trail of a visible record in insertion order
func (s *workflowServiceImpl) History(ctx context.Context, requestID string, actor entity.Actor) ([]*entity.AuditEntry, error) {
	rec, err := s.Get(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}
	return s.audit.HistoryFor(ctx, rec.ID)
}

// Document reads the attachment stored with a visible record
func (s *workflowServiceImpl) Document(ctx context.Context, requestID string, actor entity.Actor) ([]byte, string, error) {
	rec, err := s.Get(ctx, requestID, actor)
	if err != nil {
		return nil, "", err
	}
	if rec.DocumentRef == "" || s.documents == nil {
		return nil, "", fmt.Errorf("%w: no attachment on %s", ErrNotFound, rec.ID)
	}
	content, err := s.documents.Get(ctx, rec.DocumentRef)
	if err != nil {
		s.logger.Error("Failed to read attachment", "error", err, "request_id", rec.ID, "ref", rec.DocumentRef)
		return nil, "", unavailable("read attachment", err)
	}
	return content, rec.DocumentRef, nil
}

// Approve advances the record. When the approval closes the workflow the
// registered side-effect for the terminal stage runs after the commit.
func (s *workflowServiceImpl) Approve(ctx context.Context, requestID string, actor entity.Actor, opts ...ActionOption) (*ApprovalResult, error) {
	o := applyOptions(opts)
	rec, verdict, err := s.transition(ctx, requestID, actor, workflow.ActionApproved, o.notes, o.expectedStage)
	if err != nil {
		return nil, err
	}

	result := &ApprovalResult{Record: rec}
	if verdict.To != workflow.StageApproved || s.effects == nil {
		return result, nil
	}

	applied, err := s.effects.Apply(ctx, rec, verdict.From, actor.ID)
	if err != nil {
		s.logger.Warn("Side-effect failed after terminal approval",
			"error", err,
			"request_id", rec.ID,
			"stage", verdict.From)
		result.SideEffectErr = &SideEffectError{RequestID: rec.ID, Stage: verdict.From, Err: err}
		s.publish(ctx, s.effectEvent(event.TypeSideEffectFailed, rec, verdict, actor).
			WithPayload("error", err.Error()))
		return result, nil
	}
	result.SideEffectApplied = applied
	if applied {
		s.logger.Info("Side-effect applied", "request_id", rec.ID, "stage", verdict.From)
		s.publish(ctx, s.effectEvent(event.TypeSideEffectApplied, rec, verdict, actor))
	}
	return result, nil
}

// Reject closes the record as rejected with the given reason
func (s *workflowServiceImpl) Reject(ctx context.Context, requestID string, actor entity.Actor, reason string, opts ...ActionOption) (*entity.RequestRecord, error) {
	o := applyOptions(opts)
	rec, _, err := s.transition(ctx, requestID, actor, workflow.ActionRejected, strings.TrimSpace(reason), o.expectedStage)
	return rec, err
}

// Cancel closes the record as cancelled
func (s *workflowServiceImpl) Cancel(ctx context.Context, requestID string, actor entity.Actor, opts ...ActionOption) (*entity.RequestRecord, error) {
	o := applyOptions(opts)
	rec, _, err := s.transition(ctx, requestID, actor, workflow.ActionCancelled, o.notes, o.expectedStage)
	return rec, err
}

// transition evaluates the guard and commits the stage change with its audit
// entry in one transaction. The stage update is conditional on the stage the
// guard saw, so a concurrent winner turns this call into a stale denial.
func (s *workflowServiceImpl) transition(
	ctx context.Context,
	requestID string,
	actor entity.Actor,
	action workflow.Action,
	notes string,
	expected workflow.StageID,
) (*entity.RequestRecord, policy.Verdict, error) {
	rec, err := s.load(ctx, requestID)
	if err != nil {
		return nil, policy.Verdict{}, err
	}

	verdict := s.guard.CanTransition(rec, policy.TransitionRequest{
		Action:        action,
		Actor:         actor,
		Notes:         notes,
		ExpectedStage: expected,
	})
	if !verdict.Allowed {
		s.logger.Info("Transition denied",
			"request_id", rec.ID,
			"action", action,
			"stage", verdict.From,
			"actor_id", actor.ID,
			"reason", verdict.Reason)
		return nil, verdict, denied(verdict.Reason)
	}

	now := s.now().UTC()
	entry := &entity.AuditEntry{
		RequestID:   rec.ID,
		StageID:     verdict.From,
		ResultStage: verdict.To,
		ActorID:     actor.ID,
		Action:      action,
		Notes:       notes,
		Timestamp:   now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.CompareAndSwapStage(txCtx, rec.ID, verdict.From, verdict.To, now); err != nil {
			return err
		}
		return s.audit.Append(txCtx, entry)
	})
	if err != nil {
		if errors.Is(err, port.ErrStageConflict) {
			s.logger.Info("Transition lost stage race",
				"request_id", rec.ID,
				"action", action,
				"stage", verdict.From,
				"actor_id", actor.ID)
			return nil, verdict, denied(policy.ReasonStaleStage)
		}
		s.logger.Error("Failed to commit transition",
			"error", err,
			"request_id", rec.ID,
			"action", action)
		return nil, verdict, storageError("commit transition", err)
	}

	s.logger.Info("Request transitioned",
		"request_id", rec.ID,
		"action", action,
		"from_stage", verdict.From,
		"to_stage", verdict.To,
		"actor_id", actor.ID)

	updated := rec.Clone()
	updated.CurrentStage = verdict.To
	updated.UpdatedAt = now
	s.publish(ctx, event.NewEvent(event.TypeFor(action, verdict.To), transitionOf(updated, entry), now))
	return updated, verdict, nil
}

func (s *workflowServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.events == nil || evt.Type == "" {
		return
	}
	s.events.Publish(ctx, evt)
}

func (s *workflowServiceImpl) effectEvent(t event.Type, rec *entity.RequestRecord, verdict policy.Verdict, actor entity.Actor) *event.Event {
	return event.NewEvent(t, event.Transition{
		RequestID:   rec.ID,
		RequestType: rec.RequestType,
		Stage:       verdict.From,
		ResultStage: verdict.To,
		ActorID:     actor.ID,
	}, s.now().UTC())
}

func transitionOf(rec *entity.RequestRecord, entry *entity.AuditEntry) event.Transition {
	return event.Transition{
		RequestID:   rec.ID,
		RequestType: rec.RequestType,
		Stage:       entry.StageID,
		ResultStage: entry.ResultStage,
		ActorID:     entry.ActorID,
	}
}

// discardAttachment removes an attachment whose request was never committed
func (s *workflowServiceImpl) discardAttachment(ctx context.Context, requestID string) {
	if err := s.documents.Delete(context.WithoutCancel(ctx), requestID); err != nil {
		s.logger.Warn("Failed to remove orphaned attachment", "error", err, "request_id", requestID)
		return
	}
	s.logger.Info("Removed orphaned attachment", "request_id", requestID)
}

func (s *workflowServiceImpl) load(ctx context.Context, requestID string) (*entity.RequestRecord, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	rec, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		s.logger.Error("Failed to load request", "error", err, "request_id", requestID)
		return nil, unavailable("load request", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	return rec, nil
}

func (s *workflowServiceImpl) checkVisible(rec *entity.RequestRecord, actor entity.Actor) error {
	if actor.ID != "" && actor.ID == rec.SubmittedBy {
		return nil
	}
	def, err := s.registry.Get(rec.RequestType)
	if err != nil {
		return denied(err.Error())
	}
	if !policy.ScopeFor(def, actor).Contains(rec.GroupKey) {
		return denied(policy.ReasonOutOfScope)
	}
	return nil
}

func applyOptions(opts []ActionOption) actionOptions {
	var o actionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// storageError keeps already classified errors and marks the rest unavailable
func storageError(op string, err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return unavailable(op, err)
}
