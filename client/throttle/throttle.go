package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/adamwoolhether/netlayer/client/socket"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config defines the throttler's
// Requests Per Second and Burst Rate
type Config struct {
	RPS   int
	Burst int
}

// Limiter is a token bucket that can be shared between an HTTP
// transport and a socket dialer, so both count against one budget.
type Limiter struct {
	limiter *rate.Limiter
	rps     int
	burst   int
	logFn   func() *slog.Logger
}

// NewLimiter builds a shareable [Limiter].
func NewLimiter(rps, burst int, logFn func() *slog.Logger) (*Limiter, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
		logFn:   logFn,
	}, nil
}

// wait blocks until a token is available or ctx ends. target is only
// used for logging.
func (g *Limiter) wait(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	var waited time.Duration
	logger := g.logFn()
	if logger != nil && !g.limiter.Allow() {
		logger.Info("throttle tokens exhausted", "rate", g.rps, "burst", g.burst, "target", target)

		defer func() {
			logger.Info("throttle wait complete", "waited", waited.String(), "rate", g.rps, "burst", g.burst)
		}()
	}

	start := time.Now()

	err := g.limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return nil
}

// roundTripper throttles one-shot and download exchanges.
type roundTripper struct {
	gate *Limiter
	next http.RoundTripper
}

// NewRoundTripper returns an http.RoundTripper that throttles outbound requests
// using a token bucket rate limiter. logFn lazily resolves the logger at request
// time, making option ordering irrelevant. A nil-returning logFn skips the calls
// to *rate.Limiter.Allow().
func NewRoundTripper(rps, burst int, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	g, err := NewLimiter(rps, burst, logFn)
	if err != nil {
		return nil, err
	}
	return Wrap(g, next), nil
}

func (t *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.gate.wait(r.Context(), r.URL.Path); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(r)
}

// dialer throttles socket handshakes.
type dialer struct {
	gate *Limiter
	next socket.Dialer
}

// NewDialer returns a [socket.Dialer] that draws a token before every
// handshake.
func NewDialer(rps, burst int, logFn func() *slog.Logger, next socket.Dialer) (socket.Dialer, error) {
	g, err := NewLimiter(rps, burst, logFn)
	if err != nil {
		return nil, err
	}
	return WrapDialer(g, next), nil
}

func (d *dialer) Dial(ctx context.Context, req *http.Request) (socket.Conn, error) {
	if err := d.gate.wait(ctx, req.URL.Host); err != nil {
		return nil, err
	}
	return d.next.Dial(ctx, req)
}

// Wrap throttles next with l.
func Wrap(l *Limiter, next http.RoundTripper) http.RoundTripper {
	return &roundTripper{gate: l, next: next}
}

// WrapDialer throttles next with l.
func WrapDialer(l *Limiter, next socket.Dialer) socket.Dialer {
	return &dialer{gate: l, next: next}
}
