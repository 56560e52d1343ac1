// Package netlayer exposes the network access layer builder.
package netlayer

import (
	"github.com/adamwoolhether/netlayer/client"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, the default http.Client, http.Transport and
// websocket dialer are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
