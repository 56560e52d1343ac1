package socket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConn is an in-memory [Conn]. Messages pushed with send are
// returned by Receive in order.
type fakeConn struct {
	msgs      chan Message
	failures  chan error
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
	pings     atomic.Int32
	pingFn    func(ctx context.Context) error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:     make(chan Message, 16),
		failures: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case err := <-c.failures:
		return Message{}, err
	case <-c.closed:
		return Message{}, net.ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *fakeConn) Ping(ctx context.Context) error {
	c.pings.Add(1)
	if c.pingFn != nil {
		return c.pingFn(ctx)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(typ MessageType, data string) {
	c.msgs <- Message{Type: typ, Data: []byte(data)}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out fakeConns. A non-nil gate holds every dial until
// it is closed.
type fakeDialer struct {
	gate   chan struct{}
	err    error
	pingFn func(ctx context.Context) error

	mu    sync.Mutex
	conns []*fakeConn
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, req *http.Request) (Conn, error) {
	d.dials.Add(1)

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	c := newFakeConn()
	c.pingFn = d.pingFn

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	return c, nil
}

// conn waits for the i-th dialled connection.
func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()

	var c *fakeConn
	waitFor(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.conns) > i {
			c = d.conns[i]
			return true
		}
		return false
	})
	return c
}

// recorder collects what a Handler receives.
type recorder struct {
	mu    sync.Mutex
	msgs  []Message
	terms []error
}

func (r *recorder) handler() Handler {
	return Handler{
		OnMessage: func(m Message) {
			r.mu.Lock()
			r.msgs = append(r.msgs, m)
			r.mu.Unlock()
		},
		OnTerminate: func(err error) {
			r.mu.Lock()
			r.terms = append(r.terms, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = string(m.Data)
	}
	return out
}

func (r *recorder) terminals() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.terms...)
}

func (r *recorder) waitMessages(t *testing.T, n int) []string {
	t.Helper()
	waitFor(t, func() bool { return len(r.messages()) >= n })
	return r.messages()
}

func (r *recorder) waitTerminal(t *testing.T) error {
	t.Helper()
	waitFor(t, func() bool { return len(r.terminals()) > 0 })
	return r.terminals()[0]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func mustRequest(t *testing.T, rawURL string) *http.Request {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

var errBoom = errors.New("boom")
