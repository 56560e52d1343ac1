package socket

import (
	"context"
	"net/http"
)

// MessageType identifies the frame kind of an inbound message. The
// values match the websocket opcodes.
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one inbound frame.
type Message struct {
	Type MessageType
	Data []byte
}

// Conn is a live streaming connection opened by a [Dialer].
//
// Receive is only ever called from a single goroutine. Ping and Close
// may be called concurrently with Receive. Ping must block until the
// peer answers or ctx ends. Close must unblock a pending Receive.
type Conn interface {
	Receive(ctx context.Context) (Message, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens streaming connections from fully built requests.
type Dialer interface {
	Dial(ctx context.Context, req *http.Request) (Conn, error)
}

// DialerFunc adapts a function to a [Dialer].
type DialerFunc func(ctx context.Context, req *http.Request) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, req *http.Request) (Conn, error) {
	return f(ctx, req)
}
