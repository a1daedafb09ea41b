package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// RequestRecord is a request moving through an approval chain.
// Records are never deleted; rejection and cancellation are stages.
type RequestRecord struct {
	ID           string               `json:"id"`
	RequestType  workflow.RequestType `json:"request_type"`
	SubmittedBy  string               `json:"submitted_by"`
	SubmittedAt  time.Time            `json:"submitted_at"`
	CurrentStage workflow.StageID     `json:"current_stage"`
	GroupKey     string               `json:"group_key"`
	Payload      json.RawMessage      `json:"payload"`
	DocumentRef  string               `json:"document_ref,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// DecodePayload unmarshals the payload into v
func (r *RequestRecord) DecodePayload(v interface{}) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("request %s has no payload", r.ID)
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", r.RequestType, err)
	}
	return nil
}

// Clone returns a deep copy of the record
func (r *RequestRecord) Clone() *RequestRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Payload != nil {
		out.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	return &out
}
