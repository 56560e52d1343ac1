// Package throttle rate-limits outbound traffic using a token-bucket
// algorithm from [golang.org/x/time/rate].
//
// # Usage
//
// Wrap an existing transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		10,  // requests per second
//		5,   // burst capacity
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// Socket handshakes are throttled the same way with [NewDialer]. To have
// exchanges and handshakes share one budget, build a [Limiter] and pass
// it to both [Wrap] and [WrapDialer].
//
// When the rate limit is exceeded, outbound calls block until a token
// becomes available or the context is cancelled.
package throttle
