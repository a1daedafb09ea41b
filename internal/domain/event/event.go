package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// Event is emitted after a request change has been committed
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RequestID     string                 `json:"request_id"`
	RequestType   workflow.RequestType   `json:"request_type"`
	Stage         workflow.StageID       `json:"stage"`
	ResultStage   workflow.StageID       `json:"result_stage"`
	ActorID       string                 `json:"actor_id"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// Transition describes the committed change an event reports
type Transition struct {
	RequestID   string
	RequestType workflow.RequestType
	Stage       workflow.StageID
	ResultStage workflow.StageID
	ActorID     string
}

// NewEvent creates an event with a generated ID. The event starts its own
// correlation chain.
func NewEvent(eventType Type, tr Transition, at time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		RequestID:     tr.RequestID,
		RequestType:   tr.RequestType,
		Stage:         tr.Stage,
		ResultStage:   tr.ResultStage,
		ActorID:       tr.ActorID,
		Timestamp:     at,
		CorrelationID: id,
	}
}

// Follow creates an event in the same correlation chain as e
func (e *Event) Follow(eventType Type, at time.Time) *Event {
	next := NewEvent(eventType, Transition{
		RequestID:   e.RequestID,
		RequestType: e.RequestType,
		Stage:       e.Stage,
		ResultStage: e.ResultStage,
		ActorID:     e.ActorID,
	}, at)
	next.CorrelationID = e.CorrelationID
	return next
}

// WithPayload returns a copy of the event with key set in its payload
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	cp := *e
	cp.Payload = payload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadFloat retrieves a numeric value from the payload
func (e *Event) GetPayloadFloat(key string) float64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	}
	return 0
}
