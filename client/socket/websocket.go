package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeGrace bounds how long Close waits to send the close frame.
const closeGrace = time.Second

// handshakeHeaders are generated by the websocket dialer itself and
// must not be copied from the transport request.
var handshakeHeaders = []string{
	"Upgrade",
	"Connection",
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Sec-Websocket-Extensions",
	"Sec-Websocket-Protocol",
}

// WebsocketDialer is a [Dialer] backed by gorilla/websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer wraps d. A nil d uses [websocket.DefaultDialer].
func NewWebsocketDialer(d *websocket.Dialer) *WebsocketDialer {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return &WebsocketDialer{dialer: d}
}

// Dial performs the websocket handshake for req. http and https URLs
// are upgraded to ws and wss.
func (d *WebsocketDialer) Dial(ctx context.Context, req *http.Request) (Conn, error) {
	if req.URL == nil {
		return nil, errors.New("request has no URL")
	}

	u := *req.URL
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	header := req.Header.Clone()
	for _, h := range handshakeHeaders {
		header.Del(h)
	}

	var subprotocols []string
	if p := req.Header.Values("Sec-Websocket-Protocol"); len(p) > 0 {
		subprotocols = p
	}

	dialer := *d.dialer
	if len(subprotocols) > 0 {
		dialer.Subprotocols = subprotocols
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake [%d]: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	return newWebsocketConn(conn), nil
}

// websocketConn adapts *websocket.Conn to [Conn]. Pongs are observed by
// the pong handler, which only runs while Receive is reading.
type websocketConn struct {
	conn      *websocket.Conn
	pongs     chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newWebsocketConn(conn *websocket.Conn) *websocketConn {
	c := &websocketConn{
		conn:  conn,
		pongs: make(chan struct{}, 1),
	}

	conn.SetPongHandler(func(string) error {
		select {
		case c.pongs <- struct{}{}:
		default:
		}
		return nil
	})

	return c
}

func (c *websocketConn) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	typ, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Message{}, fmt.Errorf("peer closed: %w", io.EOF)
		}
		return Message{}, err
	}

	switch typ {
	case websocket.TextMessage:
		return Message{Type: TextMessage, Data: data}, nil
	default:
		return Message{Type: BinaryMessage, Data: data}, nil
	}
}

func (c *websocketConn) Ping(ctx context.Context) error {
	select {
	case <-c.pongs: // stale
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(closeGrace)
	}

	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("writing ping: %w", err)
	}

	select {
	case <-c.pongs:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("awaiting pong: %w", ctx.Err())
	}
}

func (c *websocketConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}
