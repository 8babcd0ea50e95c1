package projection

import (
	"github.com/zencastr/message-store/pkg/message"
)

// Handler folds one message of a given type into the accumulator
type Handler[T any] func(state T, msg *message.Incoming) T

// Projection is a stateful reducer over a message stream: an initial
// state plus a type-to-handler map. Not safe for concurrent use; fetch
// drains single-threaded
type Projection[T any] struct {
	handlers map[string]Handler[T]
	state    T
}

// New creates a projection with state initialized from init
func New[T any](init func() T, handlers map[string]Handler[T]) *Projection[T] {
	return &Projection[T]{
		handlers: handlers,
		state:    init(),
	}
}

// Handle folds msg into the state iff a handler is registered for
// msgType; unknown types are a no-op
func (p *Projection[T]) Handle(msgType string, msg *message.Incoming) {
	if handler, ok := p.handlers[msgType]; ok {
		p.state = handler(p.state, msg)
	}
}

// Result returns the current folded state
func (p *Projection[T]) Result() T {
	return p.state
}
