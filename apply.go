package eventsourcing

// ApplyFunc folds one envelope into an aggregate's in-memory state.
type ApplyFunc func(env *Envelope)

// ApplyHandler applies envelopes carrying one concrete event type.
type ApplyHandler interface {
	NewEvent() Event
	Apply(env *Envelope)
}

type genericApplyHandler[T Event] struct {
	applyFunc func(event T, env *Envelope)
}

// NewApplyHandler creates an ApplyHandler for the concrete event type inferred
// from the function argument.
func NewApplyHandler[T Event](applyFunc func(event T, env *Envelope)) ApplyHandler {
	return &genericApplyHandler[T]{
		applyFunc: applyFunc,
	}
}

func (h genericApplyHandler[T]) NewEvent() Event {
	tVar := new(T)
	return *tVar
}

func (h genericApplyHandler[T]) Apply(env *Envelope) {
	event, ok := env.Event.(T)
	if !ok {
		return
	}
	h.applyFunc(event, env)
}

// Applier builds an ApplyFunc that dispatches on the event type. Event types
// without a handler are silently ignored, so aggregates stay forward
// compatible with events introduced by newer writers.
func Applier(handlers ...ApplyHandler) ApplyFunc {
	applyHandlers := make(map[string]ApplyHandler)

	for _, handler := range handlers {
		applyHandlers[TypeName(handler.NewEvent())] = handler
	}

	return func(env *Envelope) {
		if handler, ok := applyHandlers[TypeName(env.Event)]; ok {
			handler.Apply(env)
		}
	}
}
