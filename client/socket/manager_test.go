package socket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/netlayer/client/errs"
)

const feedURL = "wss://feed.example.com/ticks"

func newTestManager(t *testing.T, d Dialer, opts ...Option) *Manager {
	t.Helper()

	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	m, err := NewManager(d, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.CloseAll() })

	return m
}

func waitState(t *testing.T, m *Manager, key Key, exp State) {
	t.Helper()
	waitFor(t, func() bool {
		s, ok := m.State(key)
		return ok && s == exp
	})
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Error("exp error for nil dialer")
	}
	if _, err := NewManager(&fakeDialer{}, WithKeepAlive(0)); err == nil {
		t.Error("exp error for zero keep-alive")
	}
	if _, err := NewManager(&fakeDialer{}, WithBufferSize(-1)); err == nil {
		t.Error("exp error for negative buffer size")
	}
}

func TestManager_Dedup(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	m := newTestManager(t, d)

	recs := []*recorder{{}, {}}
	subs := make([]*Subscription, len(recs))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, r := range recs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			subs[i] = m.Open(mustRequest(t, feedURL), r.handler())
		}()
	}
	close(start)
	wg.Wait()

	if subs[0].Key() != subs[1].Key() {
		t.Fatalf("exp one key, got %q and %q", subs[0].Key(), subs[1].Key())
	}
	if got := m.Len(); got != 1 {
		t.Fatalf("exp 1 entry, got %d", got)
	}

	close(d.gate)
	waitState(t, m, subs[0].Key(), StateRunning)

	conn := d.conn(t, 0)
	conn.send(BinaryMessage, "one")
	conn.send(BinaryMessage, "two")

	exp := []string{"one", "two"}
	for i, r := range recs {
		if diff := cmp.Diff(exp, r.waitMessages(t, 2)); diff != "" {
			t.Errorf("subscriber %d messages mismatch (-want +got):\n%s", i, diff)
		}
	}

	if got := d.dials.Load(); got != 1 {
		t.Errorf("exp exactly 1 dial, got %d", got)
	}
}

func TestManager_LateSubscriberSeesOnlyNewMessages(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	var early, late recorder
	sub := m.Open(mustRequest(t, feedURL), early.handler())
	waitState(t, m, sub.Key(), StateRunning)

	conn := d.conn(t, 0)
	conn.send(BinaryMessage, "before")
	early.waitMessages(t, 1)

	m.Open(mustRequest(t, feedURL), late.handler())
	conn.send(BinaryMessage, "after")

	if diff := cmp.Diff([]string{"after"}, late.waitMessages(t, 1)); diff != "" {
		t.Errorf("late subscriber mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"before", "after"}, early.waitMessages(t, 2)); diff != "" {
		t.Errorf("early subscriber mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_LastSubscriberTeardown(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	var first, second recorder
	s1 := m.Open(mustRequest(t, feedURL), first.handler())
	s2 := m.Open(mustRequest(t, feedURL), second.handler())
	key := s1.Key()
	waitState(t, m, key, StateRunning)
	conn := d.conn(t, 0)

	s1.Cancel()

	if got := m.Subscribers(key); got != 1 {
		t.Fatalf("exp 1 subscriber after first cancel, got %d", got)
	}
	if conn.isClosed() {
		t.Fatal("connection closed while a subscriber remains")
	}

	conn.send(BinaryMessage, "still here")
	if diff := cmp.Diff([]string{"still here"}, second.waitMessages(t, 1)); diff != "" {
		t.Errorf("remaining subscriber mismatch (-want +got):\n%s", diff)
	}
	if got := first.messages(); len(got) != 0 {
		t.Errorf("cancelled subscriber received %v", got)
	}
	if got := first.terminals(); len(got) != 0 {
		t.Errorf("Cancel must not call OnTerminate, got %v", got)
	}
	if !errors.Is(s1.Err(), errs.ErrCancelled) {
		t.Errorf("exp ErrCancelled from cancelled subscription, got %v", s1.Err())
	}

	s2.Cancel()

	waitFor(t, conn.isClosed)
	if got := m.Len(); got != 0 {
		t.Errorf("exp empty pool, got %d entries", got)
	}
	if got := conn.closes.Load(); got != 1 {
		t.Errorf("exp 1 close, got %d", got)
	}

	s2.Cancel()
	if got := conn.closes.Load(); got != 1 {
		t.Errorf("repeated cancel closed again: %d closes", got)
	}
}

func TestManager_KeepAlive(t *testing.T) {
	const interval = 5 * time.Second

	t.Run("ping failure", func(t *testing.T) {
		mock := clock.NewMock()
		d := &fakeDialer{pingFn: func(context.Context) error { return errBoom }}
		m := newTestManager(t, d, WithClock(mock), WithKeepAlive(interval))

		var a, b recorder
		sub := m.Open(mustRequest(t, feedURL), a.handler())
		m.Open(mustRequest(t, feedURL), b.handler())
		waitState(t, m, sub.Key(), StateRunning)
		conn := d.conn(t, 0)

		mock.Add(interval)

		for _, r := range []*recorder{&a, &b} {
			err := r.waitTerminal(t)
			var te *errs.TransportError
			if !errors.As(err, &te) || te.Op != "keep-alive" {
				t.Errorf("exp keep-alive TransportError, got %v", err)
			}
			if !errors.Is(err, errBoom) {
				t.Errorf("exp cause to be kept, got %v", err)
			}
		}

		waitFor(t, func() bool { return m.Len() == 0 })
		waitFor(t, conn.isClosed)

		// The pool must open a fresh connection rather than reuse the failed one.
		var c recorder
		fresh := m.Open(mustRequest(t, feedURL), c.handler())
		waitState(t, m, fresh.Key(), StateRunning)

		if got := d.dials.Load(); got != 2 {
			t.Errorf("exp a second dial, got %d dials", got)
		}
		if d.conn(t, 1) == conn {
			t.Error("exp a new connection")
		}
		if got := c.terminals(); len(got) != 0 {
			t.Errorf("fresh subscriber terminated: %v", got)
		}
	})

	t.Run("no pong within interval", func(t *testing.T) {
		mock := clock.NewMock()
		d := &fakeDialer{pingFn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}
		m := newTestManager(t, d, WithClock(mock), WithKeepAlive(interval))

		var r recorder
		sub := m.Open(mustRequest(t, feedURL), r.handler())
		waitState(t, m, sub.Key(), StateRunning)
		conn := d.conn(t, 0)

		mock.Add(interval)
		waitFor(t, func() bool { return conn.pings.Load() == 1 })
		mock.Add(interval)

		err := r.waitTerminal(t)
		if !errors.Is(err, errs.ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("exp transport error from ping timeout, got %v", err)
		}
		waitFor(t, func() bool { return m.Len() == 0 })
	})

	t.Run("success reschedules", func(t *testing.T) {
		mock := clock.NewMock()
		d := &fakeDialer{}
		m := newTestManager(t, d, WithClock(mock), WithKeepAlive(interval))

		var r recorder
		sub := m.Open(mustRequest(t, feedURL), r.handler())
		waitState(t, m, sub.Key(), StateRunning)
		conn := d.conn(t, 0)

		// The next ping is armed only after the previous ping returns,
		// so keep advancing until it fires.
		for i := int32(1); i <= 3; i++ {
			waitFor(t, func() bool {
				mock.Add(interval)
				return conn.pings.Load() >= i
			})
		}

		if s, _ := m.State(sub.Key()); s != StateRunning {
			t.Errorf("exp running after successful pings, got %s", s)
		}
	})

	t.Run("timer stops on close", func(t *testing.T) {
		mock := clock.NewMock()
		d := &fakeDialer{}
		m := newTestManager(t, d, WithClock(mock), WithKeepAlive(interval))

		var r recorder
		sub := m.Open(mustRequest(t, feedURL), r.handler())
		waitState(t, m, sub.Key(), StateRunning)
		conn := d.conn(t, 0)

		if err := m.Close(sub.Key()); err != nil {
			t.Fatal(err)
		}

		mock.Add(3 * interval)
		time.Sleep(20 * time.Millisecond)

		if got := conn.pings.Load(); got != 0 {
			t.Errorf("exp no pings after close, got %d", got)
		}
	})
}

func TestManager_ReceiveFailure(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	var r recorder
	sub := m.Open(mustRequest(t, feedURL), r.handler())
	waitState(t, m, sub.Key(), StateRunning)

	d.conn(t, 0).failures <- io.ErrUnexpectedEOF

	err := r.waitTerminal(t)
	if !errors.Is(err, errs.ErrTransport) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("exp transport error wrapping the read failure, got %v", err)
	}
	waitFor(t, func() bool { return m.Len() == 0 })

	<-sub.Done()
	if len(r.terminals()) != 1 {
		t.Errorf("exp exactly one terminal signal, got %v", r.terminals())
	}
}

func TestManager_DialFailure(t *testing.T) {
	d := &fakeDialer{err: errBoom}
	m := newTestManager(t, d)

	var r recorder
	m.Open(mustRequest(t, feedURL), r.handler())

	err := r.waitTerminal(t)
	var te *errs.TransportError
	if !errors.As(err, &te) || te.Op != "dial" || !errors.Is(err, errBoom) {
		t.Errorf("exp dial TransportError, got %v", err)
	}
	waitFor(t, func() bool { return m.Len() == 0 })
}

func TestManager_CloseWhileConnecting(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	m := newTestManager(t, d)

	var r recorder
	sub := m.Open(mustRequest(t, feedURL), r.handler())
	if s, _ := m.State(sub.Key()); s != StateConnecting {
		t.Fatalf("exp connecting, got %s", s)
	}

	if err := m.Close(sub.Key()); err != nil {
		t.Fatal(err)
	}
	if err := r.waitTerminal(t); !errors.Is(err, errs.ErrCancelled) {
		t.Errorf("exp ErrCancelled, got %v", err)
	}

	// The dial was abandoned with the entry's context.
	close(d.gate)
	time.Sleep(20 * time.Millisecond)
	if got := m.Len(); got != 0 {
		t.Errorf("exp empty pool, got %d", got)
	}
	if got := len(r.terminals()); got != 1 {
		t.Errorf("exp one terminal signal, got %d", got)
	}
}

func TestManager_Close(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	if err := m.Close("wss://absent.example.com/"); err != nil {
		t.Errorf("closing an absent key: %v", err)
	}

	var r recorder
	sub := m.Open(mustRequest(t, feedURL), r.handler())
	waitState(t, m, sub.Key(), StateRunning)
	conn := d.conn(t, 0)

	for range 2 {
		if err := m.CloseRequest(mustRequest(t, feedURL)); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.waitTerminal(t); !errors.Is(err, errs.ErrCancelled) {
		t.Errorf("exp ErrCancelled, got %v", err)
	}
	if got := conn.closes.Load(); got != 1 {
		t.Errorf("exp 1 close, got %d", got)
	}
	if got := len(r.terminals()); got != 1 {
		t.Errorf("exp one terminal signal, got %d", got)
	}
}

func TestManager_CloseAll(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	urls := []string{
		"wss://a.example.com/feed",
		"wss://b.example.com/feed",
		"wss://c.example.com/feed",
	}

	var recs []*recorder
	for _, u := range urls {
		for range 2 {
			r := &recorder{}
			recs = append(recs, r)
			sub := m.Open(mustRequest(t, u), r.handler())
			waitState(t, m, sub.Key(), StateRunning)
		}
	}

	if got := m.Len(); got != len(urls) {
		t.Fatalf("exp %d entries, got %d", len(urls), got)
	}

	if err := m.CloseAll(); err != nil {
		t.Fatal(err)
	}

	if got := m.Len(); got != 0 {
		t.Errorf("exp empty pool, got %d", got)
	}
	for i, r := range recs {
		terms := r.terminals()
		if len(terms) != 1 || !errors.Is(terms[0], errs.ErrCancelled) {
			t.Errorf("subscriber %d: exp exactly one ErrCancelled, got %v", i, terms)
		}
	}
	for i := range urls {
		if c := d.conn(t, i); c.closes.Load() != 1 {
			t.Errorf("conn %d: exp 1 close, got %d", i, c.closes.Load())
		}
	}
}

func TestManager_CloseAllConcurrentOpen(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			var r recorder
			m.Open(mustRequest(t, feedURL), r.handler())
		}()
		go func() {
			defer wg.Done()
			_ = m.CloseAll()
		}()
	}
	wg.Wait()

	if err := m.CloseAll(); err != nil {
		t.Fatal(err)
	}
	if got := m.Len(); got != 0 {
		t.Errorf("exp empty pool, got %d", got)
	}
}

func TestManager_AnonymousRequests(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	var a, b recorder
	s1 := m.Open(mustRequest(t, "/relative"), a.handler())
	s2 := m.Open(mustRequest(t, "/relative"), b.handler())

	if !s1.Key().IsAnonymous() || s1.Key() == s2.Key() {
		t.Errorf("exp distinct anonymous keys, got %q and %q", s1.Key(), s2.Key())
	}
	waitFor(t, func() bool { return d.dials.Load() == 2 })
}
