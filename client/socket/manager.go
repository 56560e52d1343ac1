package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/adamwoolhether/netlayer/client/errs"
)

// Manager owns every pooled streaming connection. All reads and writes
// of the connection map and of each entry's subscriber set happen under
// one mutex.
type Manager struct {
	dialer     Dialer
	logger     *slog.Logger
	clock      clock.Clock
	keepAlive  time.Duration
	bufferSize int
	tracer     trace.Tracer

	mu      sync.Mutex
	entries map[Key]*entry
	nextGen uint64
}

// NewManager builds a Manager that opens connections with dialer.
func NewManager(dialer Dialer, optFns ...Option) (*Manager, error) {
	if dialer == nil {
		return nil, errors.New("dialer must not be nil")
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying manager option: %w", err)
		}
	}

	m := &Manager{
		dialer:     dialer,
		logger:     slog.Default(),
		clock:      clock.New(),
		keepAlive:  DefaultKeepAlive,
		bufferSize: DefaultBufferSize,
		tracer:     noop.NewTracerProvider().Tracer("netlayer/socket"),
		entries:    make(map[Key]*entry),
	}

	if opts.logger != nil {
		m.logger = opts.logger
	}
	if opts.clock != nil {
		m.clock = opts.clock
	}
	if opts.keepAlive != nil {
		m.keepAlive = *opts.keepAlive
	}
	if opts.bufferSize != nil {
		m.bufferSize = *opts.bufferSize
	}
	if opts.tracer != nil {
		m.tracer = opts.tracer
	}

	return m, nil
}

// Open attaches a new subscriber to the connection for req, opening the
// connection if no live entry exists for its key. It never blocks on the
// network: the dial happens in the background and failures are reported
// through h.OnTerminate.
func (m *Manager) Open(req *http.Request, h Handler, optFns ...SubscribeOption) *Subscription {
	key, ok := KeyFor(req)
	if !ok {
		key = anonKey()
	}

	opts := subscribeOpts{
		msgType:    BinaryMessage,
		demand:     Unlimited,
		bufferSize: m.bufferSize,
	}
	for _, opt := range optFns {
		opt(&opts)
	}

	sub := newSubscription(m, key, h, opts)

	m.mu.Lock()
	e, found := m.entries[key]
	if !found || !e.state.attachable() {
		e = m.newEntryLocked(key)
	}
	sub.gen = e.gen
	e.subs[sub.id] = sub

	created := e.state == StateIdle
	if created {
		e.state = StateConnecting
	}
	subscribers := len(e.subs)
	m.mu.Unlock()

	if created {
		m.logger.Debug("opening socket", "key", key)
		go m.connect(e, req)
	} else {
		m.logger.Debug("reusing socket", "key", key, "subscribers", subscribers)
	}

	return sub
}

// Close tears down the connection for key, notifying each subscriber
// with [errs.ErrCancelled]. Closing an absent key is a no-op.
func (m *Manager) Close(key Key) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	d := m.detachLocked(e)
	m.mu.Unlock()

	return m.release(d, errs.ErrCancelled)
}

// CloseRequest closes the connection req would be pooled under.
func (m *Manager) CloseRequest(req *http.Request) error {
	key, ok := KeyFor(req)
	if !ok {
		return nil
	}
	return m.Close(key)
}

// CloseAll closes every connection present when it is called. Entries
// opened concurrently after the snapshot are left alone.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	all := make([]detached, 0, len(m.entries))
	for _, e := range m.entries {
		all = append(all, m.detachLocked(e))
	}
	m.mu.Unlock()

	if len(all) > 0 {
		m.logger.Info("closing all sockets", "count", len(all))
	}

	var g errgroup.Group
	for _, d := range all {
		g.Go(func() error {
			return m.release(d, errs.ErrCancelled)
		})
	}

	return g.Wait()
}

// State reports the lifecycle state of the entry for key.
func (m *Manager) State(key Key) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return StateClosed, false
	}
	return e.state, true
}

// Len returns the number of pooled entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Subscribers returns the number of subscribers attached to key.
func (m *Manager) Subscribers(key Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		return len(e.subs)
	}
	return 0
}

// /////////////////////////////////////////////////////////////////

func (m *Manager) newEntryLocked(key Key) *entry {
	m.nextGen++

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		key:    key,
		gen:    m.nextGen,
		state:  StateIdle,
		subs:   make(map[uuid.UUID]*Subscription),
		ctx:    ctx,
		cancel: cancel,
	}
	m.entries[key] = e

	return e
}

// detachLocked removes e from the map and hands its resources to the
// caller. The map removal guarantees it runs once per entry.
func (m *Manager) detachLocked(e *entry) detached {
	delete(m.entries, e.key)
	e.state = StateClosing

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	d := detached{entry: e, conn: e.conn}
	e.conn = nil

	for _, s := range e.subs {
		d.subs = append(d.subs, s)
	}
	clear(e.subs)

	return d
}

// release closes the connection and delivers the terminal signal to
// every subscriber of a detached entry.
func (m *Manager) release(d detached, cause error) error {
	d.entry.cancel()

	var closeErr error
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			closeErr = fmt.Errorf("closing %s: %w", d.entry.key, err)
		}
	}

	for _, s := range d.subs {
		s.terminate(cause, true)
	}

	m.mu.Lock()
	d.entry.state = StateClosed
	m.mu.Unlock()

	m.logger.Debug("socket closed", "key", d.entry.key, "subscribers", len(d.subs), "cause", cause)

	return closeErr
}

// fail tears down e after a transport failure, unless e was already
// replaced or removed.
func (m *Manager) fail(e *entry, err error) {
	m.mu.Lock()
	if m.entries[e.key] != e {
		m.mu.Unlock()
		return
	}
	d := m.detachLocked(e)
	m.mu.Unlock()

	m.logger.Warn("socket failed", "key", e.key, "error", err)

	if cerr := m.release(d, err); cerr != nil {
		m.logger.Error("releasing failed socket", "key", e.key, "error", cerr)
	}
}

// detach removes sub from its entry, closing the connection if it was
// the last subscriber.
func (m *Manager) detach(sub *Subscription) {
	m.mu.Lock()
	e, ok := m.entries[sub.key]
	if !ok || e.gen != sub.gen {
		m.mu.Unlock()
		return
	}

	delete(e.subs, sub.id)
	if len(e.subs) > 0 {
		m.mu.Unlock()
		return
	}

	d := m.detachLocked(e)
	m.mu.Unlock()

	m.logger.Debug("last subscriber left", "key", sub.key)

	if err := m.release(d, errs.ErrCancelled); err != nil {
		m.logger.Error("releasing socket", "key", sub.key, "error", err)
	}
}

// connect dials the connection for a freshly created entry and starts
// its receive loop and keep-alive pings.
func (m *Manager) connect(e *entry, req *http.Request) {
	parent := trace.ContextWithSpanContext(e.ctx, trace.SpanContextFromContext(req.Context()))
	ctx, span := m.tracer.Start(parent, "socket.dial",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("socket.key", string(e.key))),
	)
	defer span.End()

	conn, err := m.dialer.Dial(ctx, req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		m.fail(e, errs.Transport("dial", err))
		return
	}

	m.mu.Lock()
	if e.state != StateConnecting {
		m.mu.Unlock()
		m.logger.Debug("socket closed while dialing", "key", e.key)
		if err := conn.Close(); err != nil {
			m.logger.Error("closing orphaned socket", "key", e.key, "error", err)
		}
		return
	}
	e.conn = conn
	e.state = StateRunning
	m.schedulePingLocked(e)
	m.mu.Unlock()

	m.logger.Info("socket running", "key", e.key)

	go m.receive(e, conn)
}

// receive pulls messages until the entry leaves running, fanning each
// one out to a snapshot of the current subscribers.
func (m *Manager) receive(e *entry, conn Conn) {
	for {
		msg, err := conn.Receive(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			m.fail(e, errs.Transport("receive", err))
			return
		}

		m.mu.Lock()
		if e.state != StateRunning {
			m.mu.Unlock()
			return
		}
		subs := make([]*Subscription, 0, len(e.subs))
		for _, s := range e.subs {
			subs = append(subs, s)
		}
		m.mu.Unlock()

		for _, s := range subs {
			s.deliver(msg)
		}
	}
}

func (m *Manager) schedulePingLocked(e *entry) {
	e.timer = m.clock.AfterFunc(m.keepAlive, func() {
		m.ping(e)
	})
}

// ping sends one liveness ping. A ping that fails, or does not return
// within one keep-alive interval, fails the entry.
func (m *Manager) ping(e *entry) {
	m.mu.Lock()
	if e.state != StateRunning || m.entries[e.key] != e {
		m.mu.Unlock()
		return
	}
	conn := e.conn
	m.mu.Unlock()

	ctx, cancel := m.clock.WithTimeout(e.ctx, m.keepAlive)
	err := conn.Ping(ctx)
	cancel()

	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no pong within %s: %w", m.keepAlive, err)
		}
		m.fail(e, errs.Transport("keep-alive", err))
		return
	}

	m.mu.Lock()
	if e.state == StateRunning && m.entries[e.key] == e {
		m.schedulePingLocked(e)
	}
	m.mu.Unlock()
}
