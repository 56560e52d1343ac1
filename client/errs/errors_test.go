package errs

import (
	"errors"
	"io"
	"testing"
)

func TestTransport(t *testing.T) {
	if err := Transport("dial", nil); err != nil {
		t.Errorf("exp nil for nil cause, got %v", err)
	}

	err := Transport("dial", io.EOF)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, io.EOF) {
		t.Errorf("exp ErrTransport and io.EOF in chain, got %v", err)
	}

	again := Transport("receive", err)
	var te *TransportError
	if !errors.As(again, &te) || te.Op != "dial" {
		t.Errorf("exp the original TransportError to be kept, got %v", again)
	}
}

func TestErrorChains(t *testing.T) {
	cause := errors.New("cause")

	testCases := []struct {
		name   string
		err    error
		expIs  []error
		expMsg string
	}{
		{
			name:   "adaptation with fields",
			err:    &AdaptationError{Fields: []FieldError{{Field: "Kind", Err: "required"}, {Field: "Endpoint", Err: "required"}}},
			expIs:  []error{ErrAdaptation},
			expMsg: "invalid request descriptor: Kind: required; Endpoint: required",
		},
		{
			name:   "adaptation with cause",
			err:    &AdaptationError{Err: cause},
			expIs:  []error{ErrAdaptation, cause},
			expMsg: "invalid request descriptor: cause",
		},
		{
			name:   "transport",
			err:    &TransportError{Op: "keep-alive", Err: cause},
			expIs:  []error{ErrTransport, cause},
			expMsg: "transport failure: keep-alive: cause",
		},
		{
			name:   "wrong kind",
			err:    &WrongKindError{Want: "socket", Got: "plain"},
			expIs:  []error{ErrWrongTaskKind},
			expMsg: "wrong task kind: want socket, got plain",
		},
		{
			name:   "decode",
			err:    &DecodeError{Target: "main.user", Err: cause},
			expIs:  []error{ErrDecode, cause},
			expMsg: "decoding payload into main.user: cause",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, target := range tc.expIs {
				if !errors.Is(tc.err, target) {
					t.Errorf("exp %v in chain of %v", target, tc.err)
				}
			}
			if got := tc.err.Error(); got != tc.expMsg {
				t.Errorf("exp message %q, got %q", tc.expMsg, got)
			}
			if errors.Is(tc.err, ErrCancelled) {
				t.Error("unexpected ErrCancelled in chain")
			}
		})
	}
}
