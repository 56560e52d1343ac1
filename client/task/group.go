package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrCancelled is returned by [Handle.Result] after a successful
	// [Handle.Cancel].
	ErrCancelled = fmt.Errorf("task cancelled: %w", context.Canceled)
	// ErrGroupShutdown is returned for work started after [Group.Shutdown].
	ErrGroupShutdown = errors.New("task group shut down")
)

// WorkFunc is the signature for async work.
type WorkFunc[T any] func(ctx context.Context) (T, error)

// Completion receives the outcome of a task that was not cancelled.
type Completion[T any] func(T, error)

// Group manages a set of concurrent tasks.
type Group struct {
	wg       sync.WaitGroup
	sem      chan struct{}
	shutdown atomic.Bool
}

// NewGroup creates a Group with the given concurrency limit.
// If maxConcurrent <= 0, concurrency is unlimited.
func NewGroup(maxConcurrent int) *Group {
	g := &Group{}
	if maxConcurrent > 0 {
		g.sem = make(chan struct{}, maxConcurrent)
	}
	return g
}

// Wait blocks until every started task has finished.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Shutdown prevents new work from executing in this group. Tasks
// already running are unaffected.
func (g *Group) Shutdown() {
	g.shutdown.Store(true)
}

// Start launches fn in a new goroutine managed by g and returns a
// Handle for it. done runs on that goroutine unless the handle is
// cancelled first.
func Start[T any](ctx context.Context, g *Group, fn WorkFunc[T], done Completion[T]) *Handle[T] {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle[T](cancel)

	g.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			close(h.done)
			g.wg.Done()
		}()

		if g.sem != nil {
			select {
			case g.sem <- struct{}{}:
				defer func() {
					<-g.sem
				}()
			case <-ctx.Done():
				var zero T
				h.complete(zero, ctx.Err(), done)
				return
			}
		}

		if g.shutdown.Load() {
			var zero T
			h.complete(zero, ErrGroupShutdown, done)
			return
		}

		v, err := fn(ctx)
		h.complete(v, err, done)
	}()

	return h
}
