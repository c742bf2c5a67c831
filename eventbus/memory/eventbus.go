package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cqrs "github.com/vantage-obs/eventsourcing"
)

type subscriber struct {
	name    string
	filter  func(*cqrs.Envelope) bool
	handler cqrs.EventHandler
	events  chan *cqrs.Envelope
	cancel  context.CancelFunc
}

// EventBus is an in-process publisher that fans committed envelopes out to
// named subscribers. Handler failures land on the error channel; they never
// propagate back to the publishing caller.
type EventBus struct {
	mu         sync.RWMutex
	subs       map[string]*subscriber
	closed     bool
	errs       chan error
	wg         sync.WaitGroup
	bufferSize int
}

var _ cqrs.Publisher = (*EventBus)(nil)

// NewEventBus constructs a new bus with a given subscriber buffer size.
func NewEventBus(bufferSize int) *EventBus {
	return &EventBus{
		subs:       make(map[string]*subscriber),
		errs:       make(chan error, 64),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a handler under a unique name. A nil filter receives
// every envelope. The subscription is removed when ctx finishes.
func (b *EventBus) Subscribe(
	ctx context.Context,
	name string,
	filter func(*cqrs.Envelope) bool,
	handler cqrs.EventHandler,
) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if filter == nil {
		filter = func(*cqrs.Envelope) bool { return true }
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return cqrs.ErrPublisherClosed
	}

	if _, exists := b.subs[name]; exists {
		return fmt.Errorf("subscriber with name %q already registered", name)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s := &subscriber{
		name:    name,
		filter:  filter,
		handler: handler,
		events:  make(chan *cqrs.Envelope, b.bufferSize),
		cancel:  cancel,
	}

	b.subs[name] = s

	b.wg.Add(1)
	go b.runSubscriber(workerCtx, s)

	// Automatically remove when the caller's ctx finishes.
	go func() {
		<-ctx.Done()
		b.removeSubscriber(name)
	}()

	return nil
}

// Publish delivers the envelope to every matching subscriber's queue. A full
// subscriber queue drops the envelope for that subscriber and reports it on
// the error channel; durable delivery belongs to the external bus backends,
// not this in-process one.
func (b *EventBus) Publish(ctx context.Context, env *cqrs.Envelope, source string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return cqrs.ErrPublisherClosed
	}

	for _, s := range b.subs {
		if !s.filter(env) {
			continue
		}
		select {
		case s.events <- env:
		default:
			b.reportError(fmt.Errorf("subscriber %q: queue full, dropped event %s", s.name, env.EventID))
		}
	}

	return nil
}

// Errors returns the channel where handler and delivery failures are sent.
func (b *EventBus) Errors() <-chan error {
	return b.errs
}

// Close shuts down the bus and waits for all workers.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	for name, s := range b.subs {
		s.cancel()
		close(s.events)
		delete(b.subs, name)
	}
	b.mu.Unlock()

	b.wg.Wait()
	close(b.errs)

	return nil
}

// runSubscriber processes events for a single handler.
func (b *EventBus) runSubscriber(ctx context.Context, s *subscriber) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-s.events:
			if !ok {
				return
			}

			handlerCtx := cqrs.WithEnvelope(ctx, env)
			if err := s.handler.Handle(handlerCtx, env); err != nil {
				var skipped *cqrs.ErrSkippedEvent
				if errors.As(err, &skipped) {
					continue
				}
				b.reportError(fmt.Errorf("subscriber %q: %w", s.name, err))
			}
		}
	}
}

func (b *EventBus) removeSubscriber(name string) {
	b.mu.Lock()
	s, ok := b.subs[name]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, name)
	b.mu.Unlock()

	s.cancel()
	close(s.events)
}

func (b *EventBus) reportError(err error) {
	select {
	case b.errs <- err:
	default:
		// Drop error if channel full
	}
}
