package eventsourcing

import (
	"fmt"
	"sync"
)

var (
	// registry maps event type names to their factory functions.
	// Each factory must return a pointer to a fresh concrete Event so the
	// codec can unmarshal stored payloads into it.
	registry = map[string]func() Event{}

	// registryMu protects the registry for concurrent registration and lookup.
	registryMu sync.RWMutex
)

// RegisterEventByType registers an Event type under its own EventType() name.
//
// Registration typically happens from an init function in the package that
// defines the event:
//
//	func init() {
//	    eventsourcing.RegisterEventByType(func() eventsourcing.Event { return &MetricCollected{} })
//	}
//
// Panics if the factory is nil, returns nil, or the name is already taken.
func RegisterEventByType(fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}
	RegisterEventByName(fn().EventType(), fn)
}

// RegisterEventByName registers an Event type under a custom name, for event
// types whose stored name differs from EventType().
func RegisterEventByName(name string, fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}

	ev := fn()
	if ev == nil {
		panic(fmt.Sprintf("factory returned nil for event: %s", name))
	}

	registry[name] = fn
}

// NewEventByName creates a fresh instance of a registered Event by its stored
// name. Returns an error when the name is not registered; the codec falls
// back to RawEvent in that case.
func NewEventByName(name string) (Event, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("event not registered: %s", name)
	}
	ev := factory()
	if ev == nil {
		return nil, fmt.Errorf("factory returned nil for event: %s", name)
	}
	return ev, nil
}
