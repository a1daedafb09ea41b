package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// AllEvents subscribes a handler to every event type
const AllEvents event.Type = "*"

// Dispatcher routes lifecycle events to registered handlers
type Dispatcher interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler with a name for debugging
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(eventType event.Type, name string)

	// Dispatch sends the event to all matching handlers in registration order
	// and returns the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// Publish dispatches in the background. Handler errors are logged only.
	Publish(ctx context.Context, evt *event.Event)

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close stops accepting events and waits for background handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	name := d.autoNameLocked(eventType)
	d.addLocked(eventType, name, handler)
	d.mu.Unlock()

	d.logRegistered(eventType, name)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	d.addLocked(eventType, name, handler)
	d.mu.Unlock()

	d.logRegistered(eventType, name)
}

// autoNameLocked picks the first free handler-N name. d.mu must be held for writing.
func (d *eventDispatcher) autoNameLocked(eventType event.Type) string {
	taken := make(map[string]bool, len(d.handlers[eventType]))
	for _, h := range d.handlers[eventType] {
		taken[h.Name] = true
	}
	for n := len(d.handlers[eventType]); ; n++ {
		if name := fmt.Sprintf("handler-%d", n); !taken[name] {
			return name
		}
	}
}

func (d *eventDispatcher) addLocked(eventType event.Type, name string, handler Handler) {
	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
}

func (d *eventDispatcher) logRegistered(eventType event.Type, name string) {
	if d.logger != nil {
		d.logger.Info("Handler registered", "event_type", eventType, "handler_name", name)
	}
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	handlers := d.handlers[eventType]
	filtered := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}
	d.handlers[eventType] = filtered
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("Handler unregistered", "event_type", eventType, "handler_name", name)
	}
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	for _, info := range d.matching(evt.Type) {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			if d.logger != nil {
				d.logger.Error("Handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"error", err)
			}
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}
	return nil
}

// Publish runs the handlers on a context detached from the caller's
// cancellation; the change being reported has already committed.
func (d *eventDispatcher) Publish(ctx context.Context, evt *event.Event) {
	d.mu.RLock()
	if d.closed.Load() {
		d.mu.RUnlock()
		if d.logger != nil {
			d.logger.Error("Dropping event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"request_id", evt.RequestID)
		}
		return
	}
	handlers := d.matchingLocked(evt.Type)
	if len(handlers) > 0 {
		d.wg.Add(1)
	}
	d.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		for _, h := range handlers {
			if err := d.safeExecute(detached, evt, h); err != nil && d.logger != nil {
				d.logger.Error("Async handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", h.Name,
					"error", err)
			}
		}
	}()
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))
	for i, h := range handlers {
		result[i] = HandlerInfo{
			Name:        h.Name,
			EventType:   h.EventType,
			Description: h.Description,
		}
	}
	return result
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.mu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}
	d.wg.Wait()
	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}
	return nil
}

// matching returns the handlers for eventType followed by the wildcard handlers
func (d *eventDispatcher) matching(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.matchingLocked(eventType)
}

func (d *eventDispatcher) matchingLocked(eventType event.Type) []HandlerInfo {
	specific := d.handlers[eventType]
	wildcard := d.handlers[AllEvents]
	out := make([]HandlerInfo, 0, len(specific)+len(wildcard))
	out = append(out, specific...)
	return append(out, wildcard...)
}

func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Handler panic recovered",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"panic", r)
			}
		}
	}()
	return info.Handler(ctx, evt)
}
