package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/adamwoolhether/netlayer/client/errs"
)

// Decoder turns raw payload bytes into v. v must be a pointer.
type Decoder interface {
	Decode(data []byte, v any) error
}

// JSONDecoder decodes JSON payloads.
type JSONDecoder struct {
	// UseNumber preserves number precision as [json.Number]
	// instead of float64.
	UseNumber bool
}

func (d JSONDecoder) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if d.UseNumber {
		dec.UseNumber()
	}
	return dec.Decode(v)
}

// Decode decodes data into a new T. Decoder failures are wrapped in
// [*errs.DecodeError]. A nil dec uses [JSONDecoder].
func Decode[T any](data []byte, dec Decoder) (T, error) {
	if dec == nil {
		dec = JSONDecoder{}
	}

	var v T
	if err := dec.Decode(data, &v); err != nil {
		var zero T
		return zero, &errs.DecodeError{Target: fmt.Sprintf("%T", v), Err: err}
	}

	return v, nil
}

// DecodeResponses decodes the body of every response in seq. Errors
// from seq pass through unchanged.
func DecodeResponses[T any](seq iter.Seq2[*Response, error], dec Decoder) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for resp, err := range seq {
			var v T
			if err == nil {
				v, err = Decode[T](resp.Body, dec)
			}
			if !yield(v, err) {
				return
			}
		}
	}
}

// DecodeStream decodes every element of a data stream. A decode failure
// is yielded and the stream continues with the next element.
func DecodeStream[T any](seq iter.Seq2[[]byte, error], dec Decoder) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for data, err := range seq {
			var v T
			if err == nil {
				v, err = Decode[T](data, dec)
			}
			if !yield(v, err) {
				return
			}
		}
	}
}
