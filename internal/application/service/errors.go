package service

import (
	"errors"
	"fmt"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

var (
	// ErrNotFound is returned when a request id does not resolve to a record
	ErrNotFound = errors.New("request not found")

	// ErrStorageUnavailable wraps failures of the persistence or identity collaborators
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// DeniedError is an expected, user-facing refusal. Reason is safe to display.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "denied: " + e.Reason
}

func denied(reason string) error {
	return &DeniedError{Reason: reason}
}

// IsDenied reports whether err is a denial and returns its reason
func IsDenied(err error) (string, bool) {
	var d *DeniedError
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}

// SideEffectError reports that a terminal approval was recorded but its
// side-effect did not apply. The approval stands; reconcile manually.
type SideEffectError struct {
	RequestID string
	Stage     workflow.StageID
	Err       error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("side-effect for request %s at stage %s failed: %v", e.RequestID, e.Stage, e.Err)
}

func (e *SideEffectError) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
