package port

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// EventPublisher receives lifecycle events after the change they describe
// has committed. Publish must not block on delivery.
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event)
}
