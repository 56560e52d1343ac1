package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/netlayer/client/download"
	"github.com/adamwoolhether/netlayer/client/socket"
	"github.com/adamwoolhether/netlayer/client/throttle"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	baseURL           *url.URL
	maxConcurrent     int
	tracer            trace.Tracer
	dialer            socket.Dialer
	socketOpts        []socket.Option
	streamFallback    bool
	downloadOpts      []download.Option
}

// WithClient replaces the default [http.Client] used by the [Client].
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
// It does not apply to socket connections once they are open.
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per
// second and burst capacity. HTTP exchanges and socket dials share one bucket.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithBaseURL resolves relative descriptor endpoints against rawURL.
func WithBaseURL(rawURL string) Option {
	return func(c *options) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parsing base url: %w", err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("base url %q must be absolute", rawURL)
		}
		c.baseURL = u
		return nil
	}
}

// WithMaxConcurrent bounds the number of tasks started by [Client.Send]
// that run at once. Zero means unlimited.
func WithMaxConcurrent(n int) Option {
	return func(c *options) error {
		if n < 0 {
			return errors.New("max concurrent must not be negative")
		}
		c.maxConcurrent = n
		return nil
	}
}

// WithTracer records a span for every dispatched task and socket dial.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		c.socketOpts = append(c.socketOpts, socket.WithTracer(tracer))
		return nil
	}
}

// WithSocketDialer replaces the websocket dialer used for socket tasks.
func WithSocketDialer(d socket.Dialer) Option {
	return func(c *options) error {
		if d == nil {
			return errors.New("dialer must not be nil")
		}
		c.dialer = d
		return nil
	}
}

// WithKeepAlive sets the liveness ping interval of pooled sockets.
func WithKeepAlive(d time.Duration) Option {
	return func(c *options) error {
		c.socketOpts = append(c.socketOpts, socket.WithKeepAlive(d))
		return nil
	}
}

// WithClock replaces the clock that schedules keep-alive pings.
func WithClock(clk clock.Clock) Option {
	return func(c *options) error {
		c.socketOpts = append(c.socketOpts, socket.WithClock(clk))
		return nil
	}
}

// WithStreamBuffer bounds the messages queued per stream subscriber.
func WithStreamBuffer(n int) Option {
	return func(c *options) error {
		c.socketOpts = append(c.socketOpts, socket.WithBufferSize(n))
		return nil
	}
}

// WithStreamFallback lets data streams accept text messages as bytes and
// message streams accept binary messages that are valid UTF-8.
func WithStreamFallback() Option {
	return func(c *options) error {
		c.streamFallback = true
		return nil
	}
}

// WithDownloadDefaults applies opts to every download task.
func WithDownloadDefaults(opts ...DownloadOption) Option {
	return func(c *options) error {
		c.downloadOpts = append(c.downloadOpts, opts...)
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

// userAgentDialer sets the persistent User-Agent on socket handshakes.
type userAgentDialer struct {
	value string
	base  socket.Dialer
}

func (ua userAgentDialer) Dial(ctx context.Context, r *http.Request) (socket.Conn, error) {
	cpy := r.Clone(ctx)
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.Dial(ctx, cpy)
}

// /////////////////////////////////////////////////////////////////

// SendOption is a functional option for [Client.Send] and [Client.Fetch].
type SendOption func(*sendOpts) error

type sendOpts struct {
	progress     func(float64)
	downloadOpts []download.Option
}

// WithProgress reports the fraction of a download task that has been
// written, in [0, 1]. Values never decrease. It is ignored by other kinds.
func WithProgress(fn func(float64)) SendOption {
	return func(o *sendOpts) error {
		if fn == nil {
			return errors.New("progress func must not be nil")
		}
		o.progress = fn
		return nil
	}
}

// WithDownload applies download options, such as [WithChecksum], to a
// single download task.
func WithDownload(opts ...DownloadOption) SendOption {
	return func(o *sendOpts) error {
		o.downloadOpts = append(o.downloadOpts, opts...)
		return nil
	}
}
