package eventsourcing

import (
	"context"
	"fmt"
	"sort"
)

// EventHandler processes committed envelopes delivered by a publisher.
type EventHandler interface {
	// Handle processes the given envelope within the provided context.
	Handle(ctx context.Context, env *Envelope) error
}

// NewEventHandlerFunc creates an EventHandler from a plain function.
//
// There is no type checking or filtering: the handler receives every envelope
// it is invoked with. Use OnEvent[T] for type-safe handlers.
func NewEventHandlerFunc(fn func(ctx context.Context, env *Envelope) error) EventHandler {
	return eventHandlerFunc(fn)
}

// eventHandlerFunc is a function type that implements EventHandler.
type eventHandlerFunc func(ctx context.Context, env *Envelope) error

func (h eventHandlerFunc) Handle(ctx context.Context, env *Envelope) error {
	return h(ctx, env)
}

// typedEventHandler is a strongly typed event handler for a specific Event type T.
type typedEventHandler[T Event] func(ctx context.Context, event T, env *Envelope) error

// EventName returns the name of the event type T.
// It is used internally by EventGroupProcessor for routing.
func (h typedEventHandler[T]) EventName() string {
	var zero T
	return TypeName(zero)
}

// Handle processes the envelope if its event matches the type T.
// Returns ErrSkippedEvent if the event is of the wrong type.
func (h typedEventHandler[T]) Handle(ctx context.Context, env *Envelope) error {
	event, ok := env.Event.(T)
	if !ok {
		return &ErrSkippedEvent{Event: env.Event}
	}
	return h(ctx, event, env)
}

// OnEvent creates a strongly typed EventHandler for a specific event type.
//
// When routed through an EventGroupProcessor, the handler only receives
// events of type T; any other type returns ErrSkippedEvent.
//
// Example Usage:
//
//	handler := OnEvent(func(ctx context.Context, ev *MetricCollected, env *Envelope) error {
//	    fmt.Println("metric collected on", env.AggregateID)
//	    return nil
//	})
func OnEvent[T Event](fn func(ctx context.Context, event T, env *Envelope) error) EventHandler {
	return typedEventHandler[T](fn)
}

// EventGroupProcessor is a collection of typed event handlers. It routes
// incoming envelopes to the correct handler based on event type.
type EventGroupProcessor struct {
	handlers map[string]EventHandler // key = EventName()
}

// NewEventGroupProcessor creates a group of typed event handlers, each built
// via OnEvent. Panics on duplicate handlers for the same event type or on
// handlers without an EventName.
func NewEventGroupProcessor(handlers ...EventHandler) *EventGroupProcessor {
	m := make(map[string]EventHandler, len(handlers))
	for _, h := range handlers {

		u, ok := h.(interface{ EventName() string })
		if !ok {
			panic(fmt.Errorf("handler %T does not have a function `EventName()`", h))
		}

		name := u.EventName()
		if _, exists := m[name]; exists {
			panic(fmt.Errorf("duplicate handler for event %s: %w", name, ErrDuplicateHandler))
		}
		m[name] = h
	}

	return &EventGroupProcessor{
		handlers: m,
	}
}

// Handle routes the given envelope to the correct typed handler.
// Returns ErrSkippedEvent if no handler exists for the event type.
func (p *EventGroupProcessor) Handle(ctx context.Context, env *Envelope) error {
	h, ok := p.handlers[TypeName(env.Event)]
	if !ok {
		return &ErrSkippedEvent{Event: env.Event}
	}
	return h.Handle(ctx, env)
}

// StreamFilter returns a sorted list of all event names handled by this group.
// Useful for subscribing to streams or listing registered handlers.
func (p *EventGroupProcessor) StreamFilter() []string {
	out := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		out = append(out, name)
	}
	sort.Strings(out) // deterministic order
	return out
}
