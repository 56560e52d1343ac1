package download

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
)

// Option defines optional settings for downloading files.
//
// WithChecksum enables checksum validation of the downloaded file.
// h is a hash.Hash instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
//
// WithProgress enables periodic download progress logging via the
// logger supplied to Handle.
//
// WithProgressFunc reports the completed fraction of the download.
//
// WithSkipExisting causes Handle to return immediately when the
// destination file already exists, avoiding a redundant download.
type Option func(*options) error

type options struct {
	checksum     *checksumVerifier
	logProgress  bool
	progressFn   func(float64)
	lastReported float64
	skipExisting bool
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}
		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}
		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

func WithProgress() Option {
	return func(opts *options) error {
		opts.logProgress = true
		return nil
	}
}

// WithProgressFunc calls fn with a fraction in [0, 1]. Reported values
// never decrease and the last one is 1 when the download succeeds. When
// the content length is unknown only the final 1 is reported.
func WithProgressFunc(fn func(float64)) Option {
	return func(opts *options) error {
		if fn == nil {
			return errors.New("progress func must not be nil")
		}
		opts.progressFn = fn
		opts.lastReported = -1
		return nil
	}
}

func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}

// report forwards fraction to the progress func if it moved forward.
func (o *options) report(fraction float64) {
	if o.progressFn == nil {
		return
	}
	fraction = min(max(fraction, 0), 1)
	if fraction <= o.lastReported {
		return
	}
	o.lastReported = fraction
	o.progressFn(fraction)
}

// checksumVerifier hashes everything written through it.
type checksumVerifier struct {
	hash     hash.Hash
	expected string
}

func (v *checksumVerifier) Write(p []byte) (int, error) {
	return v.hash.Write(p)
}

func (v *checksumVerifier) verify() error {
	if v == nil {
		return nil
	}

	actual := hex.EncodeToString(v.hash.Sum(nil))
	if actual != v.expected {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("expected %s, got %s", v.expected, actual),
		}
	}

	return nil
}
