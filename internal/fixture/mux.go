package fixture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Handler is a http.Handler that returns an error.
type Handler func(w http.ResponseWriter, r *http.Request) error

// Middleware defines a signature to chain Handler together.
type Middleware func(handler Handler) Handler

type router struct {
	mux    *http.ServeMux
	mw     []Middleware
	log    *slog.Logger
	tracer trace.Tracer
}

func (rt *router) handle(method, path string, handler Handler) {
	handler = wrap(rt.mw, handler)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx, span := rt.startSpan(r)
		defer span.End()

		if err := handler(w, r.WithContext(ctx)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
			rt.log.Error("fixture", "handle", err)
		}
	}

	rt.mux.HandleFunc(fmt.Sprintf("%s %s", method, path), h)
}

// wrap middleware around the handler and execute in order given.
func wrap(mw []Middleware, handler Handler) Handler {
	for _, mwFn := range slices.Backward(mw) {
		if mwFn != nil {
			handler = mwFn(handler)
		}
	}

	return handler
}

// startSpan continues the caller's trace, if the request carries one.
func (rt *router) startSpan(r *http.Request) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	ctx, span := rt.tracer.Start(ctx, "fixture.handler", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(attribute.String("path", r.RequestURI))

	return ctx, span
}

// /////////////////////////////////////////////////////////////////

func logger(log *slog.Logger) Middleware {
	return func(handler Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = fmt.Sprintf("%s?%s", path, r.URL.RawQuery)
			}

			log.Info("request started", "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr)

			now := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			err := handler(rec, r)

			log.Info("request completed", "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr, "statusCode", rec.status, "since", time.Since(now).String())

			return err
		}
	}
}

// Error is a handler failure answered with Code. Messages of internal
// errors are replaced by the status text.
type Error struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	internal bool
}

func newError(code int, err error) *Error {
	return &Error{Code: code, Message: err.Error()}
}

func (e *Error) Error() string {
	return e.Message
}

// errorResponses renders errors coming out of the call chain as JSON.
func errorResponses(log *slog.Logger) Middleware {
	return func(handler Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			err := handler(w, r)
			if err == nil {
				return nil
			}

			appErr, ok := errors.AsType[*Error](err)
			if !ok {
				appErr = &Error{Code: http.StatusInternalServerError, Message: err.Error(), internal: true}
			}

			log.Error("request failed", "path", r.URL.Path, "status", appErr.Code, "error", err)

			if appErr.internal {
				appErr.Message = http.StatusText(appErr.Code)
			}

			return respondJSON(w, appErr.Code, appErr)
		}
	}
}

// panics recovers from panics if they occur.
func panics() Middleware {
	return func(handler Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					trace := debug.Stack()
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, string(trace))
				}
			}()

			return handler(w, r)
		}
	}
}

// statusRecorder remembers the written status code. It keeps the
// writer hijackable so websocket upgrades pass through the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
