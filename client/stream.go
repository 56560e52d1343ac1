package client

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/adamwoolhether/netlayer/client/errs"
	"github.com/adamwoolhether/netlayer/client/socket"
)

// OpenDataStream returns a lazy sequence of binary messages from the
// pooled connection for d. Each element is pulled on demand. Breaking
// out of the loop detaches from the connection; a normal close ends the
// sequence, any other failure is yielded once.
func (c *Client) OpenDataStream(ctx context.Context, d Descriptor) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for msg, err := range c.openStream(ctx, d, socket.BinaryMessage) {
			if !yield(msg.Data, err) {
				return
			}
		}
	}
}

// OpenMessageStream is [Client.OpenDataStream] for text messages.
func (c *Client) OpenMessageStream(ctx context.Context, d Descriptor) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for msg, err := range c.openStream(ctx, d, socket.TextMessage) {
			if !yield(string(msg.Data), err) {
				return
			}
		}
	}
}

// CloseSocket closes the pooled connection d resolves to. Every
// subscriber of it receives [errs.ErrCancelled].
func (c *Client) CloseSocket(d Descriptor) error {
	if d.Kind != KindSocket {
		return &errs.WrongKindError{Want: string(KindSocket), Got: string(d.Kind)}
	}

	treq, err := c.adapt(context.Background(), d)
	if err != nil {
		return err
	}

	return c.sockets.CloseRequest(treq.HTTP)
}

// CloseAllSockets closes every pooled connection.
func (c *Client) CloseAllSockets() error {
	return c.sockets.CloseAll()
}

// /////////////////////////////////////////////////////////////////

type streamEvent struct {
	msg  socket.Message
	err  error
	last bool
}

// openStream adapts a subscription to a pull sequence: one unit of
// demand is granted per element the consumer accepts.
func (c *Client) openStream(ctx context.Context, d Descriptor, typ socket.MessageType) iter.Seq2[socket.Message, error] {
	return func(yield func(socket.Message, error) bool) {
		if d.Kind != KindSocket {
			yield(socket.Message{}, &errs.WrongKindError{Want: string(KindSocket), Got: string(d.Kind)})
			return
		}

		treq, err := c.adapt(ctx, d)
		if err != nil {
			yield(socket.Message{}, err)
			return
		}

		// With a demand of one there is at most one message and the
		// terminal signal in flight, so the handler never blocks.
		events := make(chan streamEvent, 2)
		subOpts := []socket.SubscribeOption{socket.WithMessageType(typ), socket.WithDemand(1)}
		if c.streamFallback {
			subOpts = append(subOpts, socket.WithFallback())
		}

		sub := c.sockets.Open(treq.HTTP, socket.Handler{
			OnMessage:   func(m socket.Message) { events <- streamEvent{msg: m} },
			OnTerminate: func(err error) { events <- streamEvent{err: err, last: true} },
		}, subOpts...)
		defer sub.Cancel()

		for {
			select {
			case <-ctx.Done():
				yield(socket.Message{}, ctx.Err())
				return
			case ev := <-events:
				if ev.last {
					if !isNormalClose(ev.err) {
						yield(socket.Message{}, ev.err)
					}
					return
				}
				if !yield(ev.msg, nil) {
					return
				}
				sub.RequestNext(1)
			}
		}
	}
}

// isNormalClose reports whether err ends a stream without being a
// failure: a local close or a peer that closed the connection cleanly.
func isNormalClose(err error) bool {
	return err == nil || errors.Is(err, errs.ErrCancelled) || errors.Is(err, io.EOF)
}
