// Package socket pools long-lived streaming connections and fans their
// inbound messages out to concurrent subscribers.
//
// # Opening a Stream
//
// A [Manager] keys every connection by [KeyFor] and shares one physical
// connection between all subscribers of the same key:
//
//	m, err := socket.NewManager(socket.NewWebsocketDialer(nil),
//		socket.WithKeepAlive(5*time.Second),
//	)
//	sub := m.Open(req, socket.Handler{
//		OnMessage:   func(msg socket.Message) { ... },
//		OnTerminate: func(err error) { ... },
//	}, socket.WithMessageType(socket.TextMessage))
//	defer sub.Cancel()
//
// # Demand
//
// Subscribers start with [Unlimited] demand. Use [WithDemand] and
// [Subscription.RequestNext] for pull-based delivery; messages that
// arrive without demand wait in a bounded per-subscriber queue.
//
// # Teardown
//
// [Manager.Close] and [Manager.CloseAll] end every affected subscription
// with [errs.ErrCancelled]. A failed keep-alive ping or read ends them
// with an [errs.TransportError]. Cancelling the last subscription of a
// connection closes it.
package socket
