package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/netlayer/client/errs"
)

// maxErrBodySize caps the amount of response body read when
// building an error for an unexpected status code. This prevents
// unbounded memory usage when a large response arrives with a
// wrong status.
const maxErrBodySize = 4 << 10 // 4KB

var (
	// ErrUnexpectedStatusCode is the sentinel error wrapped by [ResponseError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrAuthFailure is joined with [ErrUnexpectedStatusCode] when the server
	// responds with 401 Unauthorized or 403 Forbidden.
	ErrAuthFailure = errors.New("auth failure")
)

// Response is the uniform result of a finished task.
type Response struct {
	StatusCode int
	Header     http.Header
	// Body holds the payload of plain and socket tasks. For an
	// unexpected status it holds at most 4KB.
	Body []byte
	// Path is the file written by a download task.
	Path string
}

// ResponseError is returned when the status code does not match the
// expected value. The response is attached.
type ResponseError struct {
	Response *Response
	Expected int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", ErrUnexpectedStatusCode, e.Response.StatusCode, e.Response.Body)
}

func (e *ResponseError) Unwrap() []error {
	switch e.Response.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return []error{ErrUnexpectedStatusCode, ErrAuthFailure}
	default:
		return []error{ErrUnexpectedStatusCode}
	}
}

// Normalize folds a body, its response metadata and an optional
// transport error into exactly one outcome. A transport error wins over
// anything else; a status other than expect yields a [*ResponseError].
func Normalize(body []byte, meta *http.Response, expect int, err error) (*Response, error) {
	if err != nil {
		return nil, errs.Transport("exchange", err)
	}
	if meta == nil {
		return nil, errs.Transport("exchange", errors.New("no response"))
	}

	resp := &Response{
		StatusCode: meta.StatusCode,
		Header:     meta.Header,
		Body:       body,
	}

	if meta.StatusCode != expect {
		return nil, &ResponseError{Response: resp, Expected: expect}
	}

	return resp, nil
}

// NormalizeDownload is [Normalize] for a body that was written to path.
func NormalizeDownload(path string, meta *http.Response, expect int, err error) (*Response, error) {
	if err != nil {
		return nil, errs.Transport("download", err)
	}
	if meta == nil {
		return nil, errs.Transport("download", errors.New("no response"))
	}

	resp := &Response{
		StatusCode: meta.StatusCode,
		Header:     meta.Header,
		Path:       path,
	}

	if meta.StatusCode != expect {
		return nil, &ResponseError{Response: resp, Expected: expect}
	}

	return resp, nil
}
