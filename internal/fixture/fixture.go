package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultFileSize is the body size served by /file without a size query.
const DefaultFileSize = 1 << 20

// Server serves one endpoint per task kind:
//
//	GET  /json            {"message": "hello"} or ?message=...
//	POST /echo            the request body, same Content-Type
//	GET  /status/{code}   the given status with a short text body
//	GET  /file            FileBytes(?size=) with a Content-Length
//	GET  /hold            blocks until the client goes away
//	GET  /ws              websocket; frames come from Broadcast
type Server struct {
	handler  http.Handler
	log      *slog.Logger
	upgrader websocket.Upgrader
	tick     time.Duration

	upgrades atomic.Int64

	mu    sync.Mutex
	peers map[*peer]struct{}
}

type peer struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// New builds a Server. It is an http.Handler and can be mounted on an
// httptest.Server or run with [Server.Run].
func New(optFns ...Option) *Server {
	var opts options
	for _, opt := range optFns {
		opt(&opts)
	}

	s := &Server{
		log:   slog.Default(),
		peers: make(map[*peer]struct{}),
		tick:  opts.tick,
	}
	if opts.log != nil {
		s.log = opts.log
	}

	rt := &router{
		mux:    http.NewServeMux(),
		mw:     []Middleware{logger(s.log), errorResponses(s.log), panics()},
		log:    s.log,
		tracer: noop.NewTracerProvider().Tracer("no-op tracer"),
	}
	if opts.tracer != nil {
		rt.tracer = opts.tracer
	}

	rt.handle(http.MethodGet, "/json", s.json)
	rt.handle(http.MethodPost, "/echo", s.echo)
	rt.handle(http.MethodGet, "/status/{code}", s.status)
	rt.handle(http.MethodGet, "/file", s.file)
	rt.handle(http.MethodGet, "/hold", s.hold)
	rt.handle(http.MethodGet, "/ws", s.socket)

	s.handler = rt.mux

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Upgrades counts completed websocket handshakes.
func (s *Server) Upgrades() int64 {
	return s.upgrades.Load()
}

// Peers returns the number of connected websocket peers.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// WaitPeers blocks until at least n peers are connected or ctx ends.
func (s *Server) WaitPeers(ctx context.Context, n int) error {
	return s.waitFor(ctx, func() bool { return s.Peers() >= n })
}

// WaitNoPeers blocks until every peer has disconnected or ctx ends.
func (s *Server) WaitNoPeers(ctx context.Context) error {
	return s.waitFor(ctx, func() bool { return s.Peers() == 0 })
}

func (s *Server) waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Broadcast writes one frame to every connected peer. typ is
// websocket.TextMessage or websocket.BinaryMessage.
func (s *Server) Broadcast(typ int, data []byte) error {
	var errs []error
	for _, p := range s.snapshot() {
		p.wmu.Lock()
		err := p.conn.WriteMessage(typ, data)
		p.wmu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisconnectAll sends a normal close frame to every peer.
func (s *Server) DisconnectAll() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	for _, p := range s.snapshot() {
		p.wmu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		p.wmu.Unlock()
	}
}

// Run serves on addr until ctx ends, then shuts down gracefully. When a
// tick interval is configured every peer receives a text tick and a
// binary tick per interval.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrs := make(chan error, 1)
	go func() {
		s.log.Info("server started", "addr", addr)
		serverErrs <- srv.ListenAndServe()
	}()

	if s.tick > 0 {
		go s.ticker(ctx)
	}

	select {
	case err := <-serverErrs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.DisconnectAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("server didn't stop gracefully: %w", err)
		}

		s.log.Info("shutdown complete")

		return nil
	}
}

// /////////////////////////////////////////////////////////////////

func (s *Server) json(w http.ResponseWriter, r *http.Request) error {
	msg := r.URL.Query().Get("message")
	if msg == "" {
		msg = "hello"
	}

	return respondJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) echo(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)

	return err
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) error {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 200 || code > 599 {
		return newError(http.StatusBadRequest, fmt.Errorf("invalid status code %q", r.PathValue("code")))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, err = fmt.Fprintf(w, "status %d", code)

	return err
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) error {
	size := DefaultFileSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return newError(http.StatusBadRequest, fmt.Errorf("invalid size %q", v))
		}
		size = n
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(size))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(FileBytes(size))

	return err
}

func (s *Server) hold(w http.ResponseWriter, r *http.Request) error {
	<-r.Context().Done()
	return nil
}

func (s *Server) socket(w http.ResponseWriter, r *http.Request) error {
	// The upgrader answers a failed handshake itself.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return nil
	}
	s.upgrades.Add(1)

	p := &peer{conn: conn}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		conn.Close()
	}()

	// Reading drives the default ping and close handlers.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (s *Server) ticker(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := s.Broadcast(websocket.TextMessage, fmt.Appendf(nil, "tick %d", n)); err != nil {
				s.log.Warn("broadcasting tick", "error", err)
			}
			payload, _ := json.Marshal(map[string]any{"seq": n, "at": now.UTC()})
			if err := s.Broadcast(websocket.BinaryMessage, payload); err != nil {
				s.log.Warn("broadcasting tick", "error", err)
			}
		}
	}
}

func (s *Server) snapshot() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	return out
}

// FileBytes returns the deterministic body /file serves for size.
func FileBytes(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err = w.Write(jsonData); err != nil {
		return err
	}

	return nil
}
