package eventsourcing

import (
	"strconv"
	"sync"
	"testing"
)

type RegistryEvent struct {
	ID string
}

func (e *RegistryEvent) EventType() string   { return "RegistryEvent" }
func (e *RegistryEvent) AggregateID() string { return e.ID }

// Another event for concurrency tests
type OtherEvent struct {
	Name string
}

func (e *OtherEvent) EventType() string   { return "OtherEvent" }
func (e *OtherEvent) AggregateID() string { return e.Name }

func resetRegistry() {
	registryMu.Lock()
	registry = map[string]func() Event{}
	registryMu.Unlock()
}

func TestRegisterEventByType(t *testing.T) {
	resetRegistry()

	t.Run("register and create new instance", func(t *testing.T) {
		RegisterEventByType(func() Event { return &RegistryEvent{} })

		ev, err := NewEventByName("RegistryEvent")
		if err != nil {
			t.Fatal(err)
		}

		if ev == nil {
			t.Fatal("expected non-nil event")
		}

		if _, ok := ev.(*RegistryEvent); !ok {
			t.Fatalf("expected *RegistryEvent, got %T", ev)
		}

		// Each call returns a new instance
		ev2, _ := NewEventByName("RegistryEvent")
		if ev == ev2 {
			t.Fatal("factory returned same instance twice")
		}
	})

	t.Run("panic on duplicate registration", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic on duplicate registration")
			}
		}()
		RegisterEventByType(func() Event { return &RegistryEvent{} })
	})
}

func TestRegisterEventByName(t *testing.T) {
	resetRegistry()

	t.Run("register by custom name", func(t *testing.T) {
		RegisterEventByName("Custom", func() Event { return &RegistryEvent{} })

		ev, err := NewEventByName("Custom")
		if err != nil {
			t.Fatal(err)
		}

		if _, ok := ev.(*RegistryEvent); !ok {
			t.Fatalf("expected *RegistryEvent, got %T", ev)
		}
	})

	t.Run("panic on nil factory", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic on nil factory")
			}
		}()
		RegisterEventByName("NilFactory", nil)
	})

	t.Run("panic when factory returns nil", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic when factory returns nil")
			}
		}()
		RegisterEventByName("ReturnsNil", func() Event { return nil })
	})
}

func TestNewEventByNameErrors(t *testing.T) {
	resetRegistry()

	_, err := NewEventByName("NonExistent")
	if err == nil {
		t.Fatal("expected error for unregistered event")
	}
}

func TestRegistryConcurrencySafety(t *testing.T) {
	resetRegistry()

	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "Evt" + strconv.Itoa(i)
			RegisterEventByName(name, func() Event { return &OtherEvent{Name: name} })
		}(i)
	}

	wg.Wait()

	// Verify all events are registered
	for i := 0; i < 100; i++ {
		name := "Evt" + strconv.Itoa(i)
		ev, err := NewEventByName(name)
		if err != nil {
			t.Fatalf("event %s not registered: %v", name, err)
		}
		if ev.(*OtherEvent).Name != name {
			t.Fatalf("event %s mismatch", name)
		}
	}
}
