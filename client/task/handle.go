package task

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	statePending int32 = iota
	stateCompleted
	stateCancelled
)

// Handle represents an in-flight or finished task.
type Handle[T any] struct {
	id     uuid.UUID
	state  atomic.Int32
	done   chan struct{}
	cancel context.CancelFunc
	val    T
	err    error
}

func newHandle[T any](cancel context.CancelFunc) *Handle[T] {
	return &Handle[T]{
		id:     uuid.New(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// ID identifies the task in logs and traces.
func (h *Handle[T]) ID() uuid.UUID { return h.id }

// Done returns a channel that is closed when the task's goroutine exits.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Cancel stops the task. It reports whether the cancellation won: when
// true the completion callback has not run and never will. When false
// the task had already completed and its callback fired.
func (h *Handle[T]) Cancel() bool {
	won := h.state.CompareAndSwap(statePending, stateCancelled)
	h.cancel()
	return won
}

// Cancelled reports whether Cancel won against completion.
func (h *Handle[T]) Cancelled() bool {
	return h.state.Load() == stateCancelled
}

// Result blocks until the task finishes and returns its outcome, or
// [ErrCancelled] if the task was cancelled first.
func (h *Handle[T]) Result() (T, error) {
	<-h.done
	if h.state.Load() == stateCancelled {
		var zero T
		return zero, ErrCancelled
	}
	return h.val, h.err
}

// complete records the outcome and fires done, unless Cancel got there
// first.
func (h *Handle[T]) complete(v T, err error, done Completion[T]) {
	if !h.state.CompareAndSwap(statePending, stateCompleted) {
		return
	}
	h.val, h.err = v, err
	if done != nil {
		done(v, err)
	}
}
