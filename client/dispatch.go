package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/adamwoolhether/netlayer/client/download"
	"github.com/adamwoolhether/netlayer/client/errs"
	"github.com/adamwoolhether/netlayer/client/socket"
)

// serveFunc performs the transport operation for one route.
type serveFunc func(ctx context.Context, treq *TransportRequest, settings sendOpts) (*Response, error)

// route is one link of the dispatch chain. A route never forwards: it
// either matches a kind and serves it, or it is skipped.
type route struct {
	name  string
	match func(TaskKind) bool
	serve serveFunc
}

type chain []route

// resolve returns the first route that matches kind.
func (ch chain) resolve(kind TaskKind) (route, error) {
	for _, r := range ch {
		if r.match(kind) {
			return r, nil
		}
	}
	return route{}, fmt.Errorf("%w: %q", errs.ErrUnroutable, kind)
}

func is(kind TaskKind) func(TaskKind) bool {
	return func(k TaskKind) bool { return k == kind }
}

// newChain orders the routes most specific first.
func (c *Client) newChain() chain {
	return chain{
		{name: "download", match: is(KindDownload), serve: c.serveDownload},
		{name: "socket", match: is(KindSocket), serve: c.serveSocket},
		{name: "plain", match: is(KindPlain), serve: c.servePlain},
	}
}

// /////////////////////////////////////////////////////////////////

func (c *Client) servePlain(ctx context.Context, treq *TransportRequest, _ sendOpts) (*Response, error) {
	resp, err := c.c.Do(treq.HTTP.WithContext(ctx))
	if err != nil {
		return Normalize(nil, nil, treq.ExpectStatus, err)
	}
	defer c.discard(resp)

	var r io.Reader = resp.Body
	if resp.StatusCode != treq.ExpectStatus {
		r = io.LimitReader(resp.Body, maxErrBodySize)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return Normalize(nil, nil, treq.ExpectStatus, fmt.Errorf("reading body: %w", err))
	}

	return Normalize(body, resp, treq.ExpectStatus, nil)
}

func (c *Client) serveDownload(ctx context.Context, treq *TransportRequest, settings sendOpts) (*Response, error) {
	resp, err := c.c.Do(treq.HTTP.WithContext(ctx))
	if err != nil {
		return NormalizeDownload("", nil, treq.ExpectStatus, err)
	}
	defer c.discard(resp)

	if resp.StatusCode != treq.ExpectStatus {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}
		return Normalize(b, resp, treq.ExpectStatus, nil)
	}

	opts := append([]download.Option(nil), c.downloadOpts...)
	opts = append(opts, settings.downloadOpts...)
	if settings.progress != nil {
		opts = append(opts, download.WithProgressFunc(settings.progress))
	}

	if _, err := download.Handle(ctx, resp.Body, resp.ContentLength, treq.Destination, c.logger, opts...); err != nil {
		return NormalizeDownload("", resp, treq.ExpectStatus, err)
	}

	return NormalizeDownload(treq.Destination, resp, treq.ExpectStatus, nil)
}

// serveSocket completes with the first message received on the pooled
// connection and then detaches from it.
func (c *Client) serveSocket(ctx context.Context, treq *TransportRequest, _ sendOpts) (*Response, error) {
	type outcome struct {
		msg socket.Message
		err error
	}

	first := make(chan outcome, 1)
	var once sync.Once
	sub := c.sockets.Open(treq.HTTP, socket.Handler{
		OnMessage: func(m socket.Message) {
			once.Do(func() { first <- outcome{msg: m} })
		},
		OnTerminate: func(err error) {
			once.Do(func() { first <- outcome{err: err} })
		},
	}, socket.WithMessageType(socket.BinaryMessage), socket.WithFallback(), socket.WithDemand(1))
	defer sub.Cancel()

	select {
	case o := <-first:
		if o.err != nil {
			return nil, o.err
		}
		return &Response{StatusCode: http.StatusSwitchingProtocols, Body: o.msg.Data}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// discard drains and closes resp.Body so the connection can be reused.
func (c *Client) discard(resp *http.Response) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		c.logger.Debug("failed to discard unused body", "error", err)
	}
	if err := resp.Body.Close(); err != nil {
		c.logger.Error("failed to close response body", "error", err)
	}
}
