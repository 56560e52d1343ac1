package fixture

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a [Server].
type Option func(*options)

type options struct {
	log    *slog.Logger
	tracer trace.Tracer
	tick   time.Duration
}

// WithLogger injects the given logger into the Server.
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.log = log
	}
}

// WithTracer injects the given tracer into the Server.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) {
		opts.tracer = tracer
	}
}

// WithTick makes [Server.Run] broadcast ticks to websocket peers.
func WithTick(d time.Duration) Option {
	return func(opts *options) {
		opts.tick = d
	}
}
