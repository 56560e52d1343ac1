package client

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/netlayer/client/download"
	"github.com/adamwoolhether/netlayer/client/socket"
	"github.com/adamwoolhether/netlayer/client/task"
	"github.com/adamwoolhether/netlayer/client/throttle"
)

// Client wraps the std-lib *http.Client and a pool of websocket
// connections behind one request model.
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs.
type Client struct {
	c              *http.Client
	logger         *slog.Logger
	tracer         trace.Tracer
	baseURL        *url.URL
	sockets        *socket.Manager
	tasks          *task.Group
	routes         chain
	streamFallback bool
	downloadOpts   []download.Option
}

// Task is the cancellable handle returned by [Client.Send].
type Task = task.Handle[*Response]

// Completion receives the outcome of a [Client.Send] task.
type Completion = task.Completion[*Response]

func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		c:      &http.Client{},
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("netlayer/client"),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.client != nil {
		client.c = opts.client
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.tracer != nil {
		client.tracer = opts.tracer
	}

	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}

	var dialer socket.Dialer = socket.NewWebsocketDialer(nil)
	if opts.dialer != nil {
		dialer = opts.dialer
	}

	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
		dialer = userAgentDialer{value: opts.userAgent, base: dialer}
	}
	if opts.throttle != nil {
		limiter, err := throttle.NewLimiter(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return client.logger })
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = throttle.Wrap(limiter, transport)
		dialer = throttle.WrapDialer(limiter, dialer)
	}
	client.c.Transport = transport

	socketOpts := append([]socket.Option{socket.WithLogger(client.logger)}, opts.socketOpts...)
	mgr, err := socket.NewManager(dialer, socketOpts...)
	if err != nil {
		return nil, fmt.Errorf("configuring sockets: %w", err)
	}

	client.sockets = mgr
	client.tasks = task.NewGroup(opts.maxConcurrent)
	client.baseURL = opts.baseURL
	client.streamFallback = opts.streamFallback
	client.downloadOpts = opts.downloadOpts
	client.routes = client.newChain()

	return client, nil
}

// Send dispatches d on a background goroutine and returns its handle.
// done is called once with the outcome unless the task is cancelled
// first. Adaptation and routing failures are returned directly and
// done is never called for them.
func (c *Client) Send(ctx context.Context, d Descriptor, done Completion, opts ...SendOption) (*Task, error) {
	settings, err := sendSettings(opts)
	if err != nil {
		return nil, err
	}

	treq, r, err := c.prepare(ctx, d)
	if err != nil {
		return nil, err
	}

	h := task.Start(ctx, c.tasks, func(ctx context.Context) (*Response, error) {
		return c.serve(ctx, r, treq, settings)
	}, done)

	c.logger.Debug("task started", "id", h.ID(), "kind", d.Kind, "url", treq.HTTP.URL.Redacted())

	return h, nil
}

// Fetch returns a lazy single-element sequence for d. Nothing is sent
// until the sequence is ranged over.
func (c *Client) Fetch(ctx context.Context, d Descriptor, opts ...SendOption) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		settings, err := sendSettings(opts)
		if err != nil {
			yield(nil, err)
			return
		}

		treq, r, err := c.prepare(ctx, d)
		if err != nil {
			yield(nil, err)
			return
		}

		yield(c.serve(ctx, r, treq, settings))
	}
}

// Wait blocks until every task started by [Client.Send] has finished.
func (c *Client) Wait() {
	c.tasks.Wait()
}

// Close stops accepting tasks and closes every pooled socket.
func (c *Client) Close() error {
	c.tasks.Shutdown()
	return c.sockets.CloseAll()
}

// Sockets exposes the connection manager backing socket tasks.
func (c *Client) Sockets() *socket.Manager {
	return c.sockets
}

// /////////////////////////////////////////////////////////////////

func (c *Client) adapt(ctx context.Context, d Descriptor) (*TransportRequest, error) {
	return Adapt(ctx, d, c.baseURL)
}

func (c *Client) prepare(ctx context.Context, d Descriptor) (*TransportRequest, route, error) {
	treq, err := c.adapt(ctx, d)
	if err != nil {
		return nil, route{}, err
	}

	r, err := c.routes.resolve(treq.Kind)
	if err != nil {
		return nil, route{}, err
	}

	return treq, r, nil
}

func (c *Client) serve(ctx context.Context, r route, treq *TransportRequest, settings sendOpts) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "netlayer."+r.name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("netlayer.kind", string(treq.Kind)),
			attribute.String("http.method", treq.HTTP.Method),
			attribute.String("url.full", treq.HTTP.URL.Redacted()),
		),
	)
	defer span.End()

	// Socket handshakes carry the trace too; the connection key ignores it.
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(treq.HTTP.Header))

	resp, err := r.serve(ctx, treq, settings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, r.name+" failed")
		c.logger.Debug("task failed", "route", r.name, "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	return resp, nil
}

func sendSettings(opts []SendOption) (sendOpts, error) {
	var settings sendOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return sendOpts{}, fmt.Errorf("applying send option: %w", err)
		}
	}
	return settings, nil
}
