package eventsourcing

// Expect describes the stream state required for an append to succeed.
type Expect interface {
	isExpect()
}

// Any means append without checking the current sequence.
type Any struct{}

func (Any) isExpect() {}

// NoStream means the aggregate must have no events yet.
type NoStream struct{}

func (NoStream) isExpect() {}

// Exact matches the latest persisted sequence exactly. This is the only form
// that yields a correct optimistic-concurrency guarantee; there is no
// "at most" variant on purpose.
type Exact uint64

func (Exact) isExpect() {}

// CheckExpect compares an expectation against the latest persisted sequence
// for an aggregate. Returns a ConflictError on mismatch. Stores call this
// while holding whatever guards their sequence read, so the comparison is
// atomic with the subsequent write.
func CheckExpect(expect Expect, latest uint64, aggregateID string) error {
	switch e := expect.(type) {
	case nil, Any:
		return nil
	case NoStream:
		if latest != 0 {
			return &ConflictError{AggregateID: aggregateID, Expected: 0, Actual: latest}
		}
		return nil
	case Exact:
		if latest != uint64(e) {
			return &ConflictError{AggregateID: aggregateID, Expected: uint64(e), Actual: latest}
		}
		return nil
	default:
		return nil
	}
}
