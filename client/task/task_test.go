package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStart_Completes(t *testing.T) {
	g := NewGroup(0)

	var calls atomic.Int32
	h := Start(t.Context(), g, func(ctx context.Context) (string, error) {
		return "ok", nil
	}, func(v string, err error) {
		calls.Add(1)
		if v != "ok" || err != nil {
			t.Errorf("exp ok/nil, got %q/%v", v, err)
		}
	})

	v, err := h.Result()
	if v != "ok" || err != nil {
		t.Errorf("exp ok/nil from Result, got %q/%v", v, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("exp completion once, got %d", got)
	}
	if h.Cancel() {
		t.Error("Cancel after completion must report false")
	}
	if h.Cancelled() {
		t.Error("completed task reported as cancelled")
	}
}

func TestCancel_SuppressesCompletion(t *testing.T) {
	g := NewGroup(0)

	started := make(chan struct{})
	var calls atomic.Int32
	h := Start(t.Context(), g, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		// The work still produces a value after cancellation.
		return 42, nil
	}, func(int, error) {
		calls.Add(1)
	})

	<-started
	if !h.Cancel() {
		t.Fatal("exp Cancel to win against a running task")
	}
	<-h.Done()

	if got := calls.Load(); got != 0 {
		t.Errorf("completion fired %d times after cancel", got)
	}
	if _, err := h.Result(); !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("exp ErrCancelled, got %v", err)
	}
	if !h.Cancelled() {
		t.Error("exp Cancelled to report true")
	}
}

func TestCancel_RaceIsAtMostOnce(t *testing.T) {
	g := NewGroup(0)

	for range 200 {
		var calls atomic.Int32
		h := Start(t.Context(), g, func(ctx context.Context) (int, error) {
			return 1, nil
		}, func(int, error) {
			calls.Add(1)
		})

		won := h.Cancel()
		<-h.Done()

		switch got := calls.Load(); {
		case won && got != 0:
			t.Fatalf("completion fired after a winning cancel")
		case !won && got != 1:
			t.Fatalf("exp exactly one completion when cancel lost, got %d", got)
		}
	}
	g.Wait()
}

func TestGroup_MaxConcurrent(t *testing.T) {
	g := NewGroup(2)

	var running, peak atomic.Int32
	var mu sync.Mutex
	for range 6 {
		Start(t.Context(), g, func(ctx context.Context) (struct{}, error) {
			n := running.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		}, nil)
	}
	g.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("exp at most 2 concurrent tasks, got %d", got)
	}
}

func TestGroup_Shutdown(t *testing.T) {
	g := NewGroup(0)
	g.Shutdown()

	ran := false
	h := Start(t.Context(), g, func(ctx context.Context) (int, error) {
		ran = true
		return 0, nil
	}, nil)

	if _, err := h.Result(); !errors.Is(err, ErrGroupShutdown) {
		t.Errorf("exp ErrGroupShutdown, got %v", err)
	}
	if ran {
		t.Error("work ran after shutdown")
	}
}

func TestHandle_UniqueIDs(t *testing.T) {
	g := NewGroup(0)
	noop := func(context.Context) (int, error) { return 0, nil }

	a := Start(t.Context(), g, noop, nil)
	b := Start(t.Context(), g, noop, nil)
	g.Wait()

	if a.ID() == b.ID() {
		t.Error("exp distinct task ids")
	}
}
