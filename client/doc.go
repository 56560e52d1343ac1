// Package client provides the core implementation of the network access
// layer: plain exchanges, file downloads and pooled websocket streams
// behind one [Descriptor].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithBaseURL("https://api.example.com"),
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//	)
//
// # Sending Requests
//
// [Client.Send] runs a descriptor in the background and calls the
// completion once, unless the returned [Task] is cancelled first:
//
//	d := client.Descriptor{Kind: client.KindPlain, Endpoint: "/v1/resource"}
//	t, err := c.Send(ctx, d, func(resp *client.Response, err error) { ... })
//	t.Cancel()
//
// [Client.Fetch] is the lazy form. A status other than
// [Descriptor.ExpectStatus] is reported as a [*ResponseError]:
//
//	for resp, err := range c.Fetch(ctx, d) { ... }
//
// # Downloading Files
//
// Download descriptors stream the body to [Descriptor.Destination] with
// optional checksum verification and progress reporting:
//
//	d := client.Descriptor{Kind: client.KindDownload, Endpoint: "/file.bin", Destination: "/tmp/file.bin"}
//	t, err := c.Send(ctx, d, done,
//		client.WithProgress(func(f float64) { ... }),
//		client.WithDownload(client.WithChecksum(sha256.New(), expectedHex)),
//	)
//
// # Streams
//
// Socket descriptors share one connection per target. Each stream pulls
// one message at a time and detaches when the loop ends:
//
//	d := client.Descriptor{Kind: client.KindSocket, Endpoint: "wss://feed.example.com/ticks"}
//	for data, err := range c.OpenDataStream(ctx, d) { ... }
//
// For lower-level control see the
// [github.com/adamwoolhether/netlayer/client/socket] package.
package client
