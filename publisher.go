package eventsourcing

import "context"

// Publisher fans committed events out to downstream subscribers. Delivery is
// fire-and-forget from the core's perspective: the event log is the system of
// record, so a publish failure never rolls back an append and never turns a
// successful save into a failure. Failures surface on the Errors channel
// instead.
type Publisher interface {
	// Publish hands one committed envelope to the transport. The source tag
	// identifies the publishing system in the outgoing payload.
	Publish(ctx context.Context, env *Envelope, source string) error

	// Errors returns the channel where asynchronous publish failures are sent.
	Errors() <-chan error

	// Close shuts the publisher down and waits for in-flight work.
	Close() error
}

// PublishCommitted hands each envelope to the publisher after a successful
// save. Per-event failures are ignored here on purpose: they are already
// reported on the publisher's error channel, and the append they follow is
// durable either way.
func PublishCommitted(ctx context.Context, publisher Publisher, events []Envelope, source string) {
	for i := range events {
		_ = publisher.Publish(ctx, &events[i], source)
	}
}
