package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/adamwoolhether/netlayer/client/errs"
)

// TaskKind selects the dispatch route for a [Descriptor].
type TaskKind string

const (
	// KindPlain is a request/response exchange with the body held in memory.
	KindPlain TaskKind = "plain"
	// KindDownload streams the response body to [Descriptor.Destination].
	KindDownload TaskKind = "download"
	// KindSocket opens a pooled websocket connection.
	KindSocket TaskKind = "socket"
)

const defaultContentType = "application/json"

// Descriptor is the declarative, transport-independent description of
// one request.
type Descriptor struct {
	Kind     TaskKind `validate:"required"`
	Method   string   `validate:"omitempty,uppercase"`
	Endpoint string   `validate:"required"`

	Query   map[string]string
	Headers map[string][]string
	Cookies []*http.Cookie `validate:"-"`

	// Body is JSON-encoded. RawBody is sent as-is and wins when both
	// are set.
	Body        any    `validate:"-"`
	RawBody     []byte `validate:"-"`
	ContentType string

	// Destination is the file a download is written to.
	Destination string `validate:"required_if=Kind download"`

	// ExpectStatus defaults to 200.
	ExpectStatus int `validate:"omitempty,min=100,max=599"`
}

// TransportRequest is the concrete request produced by [Adapt].
type TransportRequest struct {
	Kind         TaskKind
	HTTP         *http.Request
	Destination  string
	ExpectStatus int
}

// Adapt turns d into a transport request. Relative endpoints are
// resolved against base when base is non-nil. Plain and download
// endpoints must end up absolute with a host; socket endpoints may stay
// relative and get an anonymous pool key. All failures are
// [*errs.AdaptationError] values and happen before any I/O.
func Adapt(ctx context.Context, d Descriptor, base *url.URL) (*TransportRequest, error) {
	if err := validateDescriptor(d); err != nil {
		return nil, err
	}

	target, err := url.Parse(d.Endpoint)
	if err != nil {
		return nil, &errs.AdaptationError{Err: fmt.Errorf("parsing endpoint: %w", err)}
	}
	if base != nil && !target.IsAbs() {
		target = base.ResolveReference(target)
	}
	if d.Kind != KindSocket && (!target.IsAbs() || target.Host == "") {
		return nil, &errs.AdaptationError{Err: fmt.Errorf("endpoint %q does not resolve to an absolute URL", d.Endpoint)}
	}

	if len(d.Query) > 0 {
		q := target.Query()
		for k, v := range d.Query {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	switch {
	case d.RawBody != nil:
		body = bytes.NewReader(d.RawBody)
	case d.Body != nil:
		var payload bytes.Buffer
		if err := json.NewEncoder(&payload).Encode(d.Body); err != nil {
			return nil, &errs.AdaptationError{Err: fmt.Errorf("encoding payload: %w", err)}
		}
		body = &payload
	}

	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, &errs.AdaptationError{Err: fmt.Errorf("instantiating request: %w", err)}
	}

	for _, cookie := range d.Cookies {
		req.AddCookie(cookie)
	}

	contentType := d.ContentType
	if contentType == "" && body != nil {
		contentType = defaultContentType
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for k, v := range d.Headers {
		for _, element := range v {
			req.Header.Add(k, element)
		}
	}

	expect := d.ExpectStatus
	if expect == 0 {
		expect = http.StatusOK
	}

	return &TransportRequest{
		Kind:         d.Kind,
		HTTP:         req,
		Destination:  d.Destination,
		ExpectStatus: expect,
	}, nil
}

// URL creates a url.URL suitable for [Descriptor.Endpoint].
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != nil {
		host = fmt.Sprintf("%s:%d", host, *settings.port)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		endpoint.RawQuery = queryParams.Encode()
	}

	return &endpoint
}

// URLOption is a functional option for [URL].
type URLOption func(options *urlOpts)

type urlOpts struct {
	queryStrings map[string]string
	port         *int
}

// WithQueryStrings appends query parameters to the URL.
func WithQueryStrings(queryKV map[string]string) URLOption {
	return func(opts *urlOpts) {
		opts.queryStrings = queryKV
	}
}

// WithPort sets the port number on the URL's host.
func WithPort(port int) URLOption {
	return func(opts *urlOpts) {
		opts.port = &port
	}
}
