package dispatcher

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Handler processes lifecycle events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// LoggingHandler writes every event to logger. Side-effect failures are
// logged as errors.
func LoggingHandler(logger Logger) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		kv := []interface{}{
			"event_id", evt.ID,
			"event_type", evt.Type,
			"request_id", evt.RequestID,
			"request_type", evt.RequestType,
			"stage", evt.Stage,
			"result_stage", evt.ResultStage,
			"actor_id", evt.ActorID,
			"correlation_id", evt.CorrelationID,
		}
		for k, v := range evt.Payload {
			kv = append(kv, k, v)
		}
		if evt.Type == event.TypeSideEffectFailed {
			logger.Error("Request event", kv...)
			return nil
		}
		logger.Info("Request event", kv...)
		return nil
	}
}
