// Package errs defines the failure taxonomy shared by the request
// dispatch chain and the socket connection manager.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnroutable is returned when no dispatch route accepts a task kind.
	ErrUnroutable = errors.New("no route for task kind")
	// ErrWrongTaskKind is wrapped by [WrongKindError].
	ErrWrongTaskKind = errors.New("wrong task kind")
	// ErrCancelled is the terminal signal delivered to subscribers
	// when their connection is closed on request.
	ErrCancelled = errors.New("connection cancelled")
	// ErrTransport is wrapped by [TransportError].
	ErrTransport = errors.New("transport failure")
	// ErrAdaptation is wrapped by [AdaptationError].
	ErrAdaptation = errors.New("invalid request descriptor")
	// ErrDecode is wrapped by [DecodeError].
	ErrDecode = errors.New("decoding payload")
)

// FieldError is a single invalid descriptor field.
type FieldError struct {
	Field string
	Err   string
}

// AdaptationError is returned when a descriptor cannot be turned into
// a transport request. It is always raised before any I/O.
type AdaptationError struct {
	Fields []FieldError
	Err    error
}

func (e *AdaptationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%v: %v", ErrAdaptation, e.Err)
	}

	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Err
	}

	return fmt.Sprintf("%v: %s", ErrAdaptation, strings.Join(parts, "; "))
}

func (e *AdaptationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAdaptation}
	}
	return []error{ErrAdaptation, e.Err}
}

// TransportError wraps a connection or exchange failure: dial, TLS,
// reset, read failure or a failed keep-alive ping.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// Transport wraps err in a [TransportError] unless it already is one.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	return &TransportError{Op: op, Err: err}
}

// WrongKindError is returned when an operation is invoked with a
// descriptor of a kind it does not serve.
type WrongKindError struct {
	Want string
	Got  string
}

func (e *WrongKindError) Error() string {
	return fmt.Sprintf("%v: want %s, got %s", ErrWrongTaskKind, e.Want, e.Got)
}

func (e *WrongKindError) Unwrap() error {
	return ErrWrongTaskKind
}

// DecodeError wraps a payload decoder failure.
type DecodeError struct {
	Target string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v into %s: %v", ErrDecode, e.Target, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}
