package socket

import (
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultKeepAlive is the interval between liveness pings.
	DefaultKeepAlive = 8 * time.Second
	// DefaultBufferSize bounds the messages queued per subscriber
	// while it has no outstanding demand.
	DefaultBufferSize = 64
)

// Option is a functional option for configuring a [Manager] via [NewManager].
type Option func(*options) error

type options struct {
	logger     *slog.Logger
	clock      clock.Clock
	keepAlive  *time.Duration
	bufferSize *int
	tracer     trace.Tracer
}

// WithLogger injects a custom [slog.Logger] into the [Manager].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithClock replaces the clock driving keep-alive pings.
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		if c == nil {
			return errors.New("clock must not be nil")
		}
		o.clock = c
		return nil
	}
}

// WithKeepAlive sets the ping interval. A ping that does not succeed
// within one interval counts as a failure.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("keep-alive interval must be positive")
		}
		o.keepAlive = &d
		return nil
	}
}

// WithBufferSize bounds each subscriber's pending message queue.
func WithBufferSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New("buffer size must be positive")
		}
		o.bufferSize = &n
		return nil
	}
}

// WithTracer records a span for every dial.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}
