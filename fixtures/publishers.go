package fixtures

import (
	"context"
	"sync"

	es "github.com/vantage-obs/eventsourcing"
)

// PublisherSpy is a configurable mock Publisher for testing.
type PublisherSpy struct {
	mu sync.Mutex

	// Function overrides
	PublishFn func(ctx context.Context, envlp *es.Envelope, source string) error
	CloseFn   func() error

	// Call tracking
	PublishCalls int
	CloseCalls   int

	// Captured publishes
	Published  []*es.Envelope
	LastSource string

	// Error injection
	publishErr error
	errChan    chan error
	closed     bool
}

var _ es.Publisher = (*PublisherSpy)(nil)

// NewPublisherSpy creates a new PublisherSpy.
func NewPublisherSpy() *PublisherSpy {
	return &PublisherSpy{
		errChan: make(chan error, 10),
	}
}

// FailOnPublish configures the publisher to return an error on Publish.
func (p *PublisherSpy) FailOnPublish(err error) *PublisherSpy {
	p.publishErr = err
	return p
}

// Publish implements Publisher.Publish.
func (p *PublisherSpy) Publish(ctx context.Context, envlp *es.Envelope, source string) error {
	p.mu.Lock()
	p.PublishCalls++
	p.Published = append(p.Published, envlp)
	p.LastSource = source
	p.mu.Unlock()

	if p.PublishFn != nil {
		return p.PublishFn(ctx, envlp, source)
	}

	if p.publishErr != nil {
		p.SendError(p.publishErr)
		return p.publishErr
	}

	return nil
}

// Errors implements Publisher.Errors.
func (p *PublisherSpy) Errors() <-chan error {
	return p.errChan
}

// Close implements Publisher.Close.
func (p *PublisherSpy) Close() error {
	p.mu.Lock()
	p.CloseCalls++
	if !p.closed {
		p.closed = true
		close(p.errChan)
	}
	p.mu.Unlock()

	if p.CloseFn != nil {
		return p.CloseFn()
	}
	return nil
}

// SendError sends an error to the error channel for testing error handling.
func (p *PublisherSpy) SendError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		select {
		case p.errChan <- err:
		default:
		}
	}
}

// PublishCount returns the number of published envelopes.
func (p *PublisherSpy) PublishCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Published)
}

// Reset clears all call counts and captured publishes.
func (p *PublisherSpy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.PublishCalls = 0
	p.CloseCalls = 0
	p.Published = nil
	p.LastSource = ""
	p.publishErr = nil
}

// EventHandlerSpy is a configurable mock EventHandler for testing.
type EventHandlerSpy struct {
	mu sync.Mutex

	// Function override
	HandleFn func(ctx context.Context, envlp *es.Envelope) error

	// Call tracking
	HandleCalls int

	// Captured envelopes
	Received []*es.Envelope

	// Error injection
	handleErr error
}

var _ es.EventHandler = (*EventHandlerSpy)(nil)

// NewEventHandlerSpy creates a new EventHandlerSpy.
func NewEventHandlerSpy() *EventHandlerSpy {
	return &EventHandlerSpy{}
}

// FailOnHandle configures the handler to return an error.
func (h *EventHandlerSpy) FailOnHandle(err error) *EventHandlerSpy {
	h.handleErr = err
	return h
}

// Handle implements EventHandler.Handle.
func (h *EventHandlerSpy) Handle(ctx context.Context, envlp *es.Envelope) error {
	h.mu.Lock()
	h.HandleCalls++
	h.Received = append(h.Received, envlp)
	h.mu.Unlock()

	if h.HandleFn != nil {
		return h.HandleFn(ctx, envlp)
	}

	if h.handleErr != nil {
		return h.handleErr
	}

	return nil
}

// LastEnvelope returns the most recently received envelope, or nil if none.
func (h *EventHandlerSpy) LastEnvelope() *es.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.Received) == 0 {
		return nil
	}
	return h.Received[len(h.Received)-1]
}

// EventCount returns the number of envelopes received.
func (h *EventHandlerSpy) EventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Received)
}

// Reset clears all call counts and received envelopes.
func (h *EventHandlerSpy) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.HandleCalls = 0
	h.Received = nil
	h.handleErr = nil
}
