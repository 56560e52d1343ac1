package socket

import (
	"log/slog"
	"math"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/adamwoolhether/netlayer/client/errs"
)

// Unlimited demand lets the manager push every message without waiting
// for RequestNext.
const Unlimited int64 = math.MaxInt64

// Handler receives the message flow of one subscription. OnMessage is
// never called concurrently for the same subscription and never runs on
// the connection's receive loop, so a slow handler only backs up its own
// buffer. OnTerminate is called at most once, and nothing is delivered
// after it.
type Handler struct {
	OnMessage   func(Message)
	OnTerminate func(error)
}

// Subscription binds one consumer to a pooled connection. It does not
// own the connection: it only holds the connection key and the entry
// generation it was attached to.
type Subscription struct {
	id      uuid.UUID
	key     Key
	gen     uint64
	mgr     *Manager
	handler Handler
	opts    subscribeOpts
	logger  *slog.Logger

	mu         sync.Mutex
	demand     int64
	queue      []Message
	draining   bool
	terminated bool
	finished   bool
	notify     bool
	err        error
	done       chan struct{}
}

func newSubscription(m *Manager, key Key, h Handler, opts subscribeOpts) *Subscription {
	return &Subscription{
		id:      uuid.New(),
		key:     key,
		mgr:     m,
		handler: h,
		opts:    opts,
		logger:  m.logger,
		demand:  opts.demand,
		done:    make(chan struct{}),
	}
}

// ID uniquely identifies the subscription.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Key is the connection key the subscription is attached to.
func (s *Subscription) Key() Key { return s.key }

// Done is closed once the subscription reached its terminal state.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the terminal error, or nil while the subscription is live.
// A subscription cancelled by its own consumer reports [errs.ErrCancelled].
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RequestNext adds n to the outstanding demand. Non-positive values are
// ignored; [Unlimited] switches the subscription to unbounded delivery.
func (s *Subscription) RequestNext(n int64) {
	if n <= 0 {
		return
	}

	s.mu.Lock()
	switch {
	case s.terminated:
		s.mu.Unlock()
		return
	case n == Unlimited || s.demand > Unlimited-n:
		s.demand = Unlimited
	default:
		s.demand += n
	}
	s.mu.Unlock()

	s.drain()
}

// Cancel detaches the subscription. Other subscribers of the same
// connection are unaffected; the connection is closed when this was the
// last subscriber. Cancel is idempotent and does not invoke OnTerminate.
func (s *Subscription) Cancel() {
	if !s.terminate(errs.ErrCancelled, false) {
		return
	}
	s.mgr.detach(s)
}

// deliver enqueues msg if it passes the subscription's type filter and
// hands delivery to a drain goroutine. It never calls the handler.
func (s *Subscription) deliver(msg Message) {
	msg, ok := s.opts.accept(msg)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.opts.bufferSize {
		s.queue = s.queue[1:]
		s.logger.Warn("subscriber buffer full, dropping oldest message", "key", s.key, "id", s.id)
	}
	s.queue = append(s.queue, msg)
	start := s.claimLocked()
	s.mu.Unlock()

	if start {
		go s.run()
	}
}

// terminate moves the subscription into its terminal state. Pending
// messages are discarded. It reports whether this call did the transition.
func (s *Subscription) terminate(err error, notify bool) bool {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return false
	}
	s.terminated = true
	s.notify = notify
	s.err = err
	s.queue = nil
	s.mu.Unlock()

	s.drain()

	return true
}

// drain delivers pending work on the calling goroutine unless another
// goroutine is already draining.
func (s *Subscription) drain() {
	s.mu.Lock()
	start := s.claimLocked()
	s.mu.Unlock()

	if start {
		s.run()
	}
}

// claimLocked marks the caller as the single drainer when there is
// something to hand over. s.mu must be held.
func (s *Subscription) claimLocked() bool {
	if s.draining {
		return false
	}
	pending := len(s.queue) > 0 && s.demand > 0
	if !pending && !(s.terminated && !s.finished) {
		return false
	}
	s.draining = true
	return true
}

// run hands queued messages to the handler while demand allows, then
// the terminal signal. Only the claiming goroutine runs it, which keeps
// delivery ordered no matter who triggered it.
func (s *Subscription) run() {
	s.mu.Lock()
	for {
		if s.terminated {
			if !s.finished {
				s.finished = true
				close(s.done)
				err, notify := s.err, s.notify
				s.mu.Unlock()
				if notify && s.handler.OnTerminate != nil {
					s.handler.OnTerminate(err)
				}
				s.mu.Lock()
			}
			break
		}

		if len(s.queue) == 0 || s.demand == 0 {
			break
		}

		msg := s.queue[0]
		s.queue = s.queue[1:]
		if s.demand != Unlimited {
			s.demand--
		}

		s.mu.Unlock()
		if s.handler.OnMessage != nil {
			s.handler.OnMessage(msg)
		}
		s.mu.Lock()
	}

	s.draining = false
	s.mu.Unlock()
}

// /////////////////////////////////////////////////////////////////

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeOpts)

type subscribeOpts struct {
	msgType    MessageType
	fallback   bool
	demand     int64
	bufferSize int
}

// WithMessageType selects text or binary messages. The default is binary.
func WithMessageType(t MessageType) SubscribeOption {
	return func(o *subscribeOpts) {
		o.msgType = t
	}
}

// WithFallback lets a subscriber reinterpret messages of the other type.
// Text is always valid binary; binary becomes text only when it is UTF-8.
func WithFallback() SubscribeOption {
	return func(o *subscribeOpts) {
		o.fallback = true
	}
}

// WithDemand sets the initial demand. The default is [Unlimited] and
// negative values mean zero.
func WithDemand(n int64) SubscribeOption {
	return func(o *subscribeOpts) {
		if n < 0 {
			n = 0
		}
		o.demand = n
	}
}

// accept applies the type filter. Failed reinterpretation drops the
// message rather than failing the subscription.
func (o subscribeOpts) accept(m Message) (Message, bool) {
	if m.Type == o.msgType {
		return m, true
	}
	if !o.fallback {
		return Message{}, false
	}

	switch o.msgType {
	case BinaryMessage:
		return Message{Type: BinaryMessage, Data: m.Data}, true
	case TextMessage:
		if utf8.Valid(m.Data) {
			return Message{Type: TextMessage, Data: m.Data}, true
		}
	}

	return Message{}, false
}
