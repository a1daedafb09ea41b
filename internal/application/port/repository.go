package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// ErrStageConflict is returned by CompareAndSwapStage when the stored stage
// no longer matches the expected one
var ErrStageConflict = errors.New("stage conflict")

// RequestFilter narrows a request listing. Zero values do not filter.
type RequestFilter struct {
	RequestType workflow.RequestType

	// GroupKeys restricts results to these groups unless AllGroups is set.
	// An empty list without AllGroups matches nothing.
	GroupKeys []string
	AllGroups bool

	Stages        []workflow.StageID
	SubmittedBy   string
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time

	Limit  int
	Offset int
}

// RequestRepository defines persistence operations for RequestRecord
type RequestRepository interface {
	// Create stores a new record
	Create(ctx context.Context, rec *entity.RequestRecord) error

	// GetByID returns nil, nil when the record does not exist
	GetByID(ctx context.Context, id string) (*entity.RequestRecord, error)

	// CompareAndSwapStage moves the record to next only if it is still at expected.
	// Returns ErrStageConflict otherwise.
	CompareAndSwapStage(ctx context.Context, id string, expected, next workflow.StageID, at time.Time) error

	// List returns records matching the filter, newest first
	List(ctx context.Context, filter RequestFilter) ([]*entity.RequestRecord, error)
}

// AuditRepository defines the append-only audit log
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error

	// GetByRequestID returns entries in insertion order
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.AuditEntry, error)

	// HasEntry reports whether an entry with the stage and action exists for the request
	HasEntry(ctx context.Context, requestID string, stage workflow.StageID, action workflow.Action) (bool, error)
}

// EffectLog records which side-effects have been applied
type EffectLog interface {
	// MarkApplied records the application and reports whether this call was the first
	MarkApplied(ctx context.Context, requestID string, stage workflow.StageID, at time.Time) (bool, error)

	WasApplied(ctx context.Context, requestID string, stage workflow.StageID) (bool, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
