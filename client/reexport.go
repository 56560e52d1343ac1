package client

import (
	"hash"

	"github.com/adamwoolhether/netlayer/client/download"
	"github.com/adamwoolhether/netlayer/client/errs"
	"github.com/adamwoolhether/netlayer/client/socket"
	"github.com/adamwoolhether/netlayer/client/task"
)

// ////////////////////////////////////////////////////////////////////
// Type aliases – re-export user-facing types from the sub-packages.
// ////////////////////////////////////////////////////////////////////

type (
	// AdaptationError reports a descriptor that could not be adapted.
	AdaptationError = errs.AdaptationError

	// TransportError wraps a connection or exchange failure.
	TransportError = errs.TransportError

	// WrongKindError is returned when a socket-only operation gets
	// another kind of descriptor.
	WrongKindError = errs.WrongKindError

	// DecodeError wraps a payload decoder failure.
	DecodeError = errs.DecodeError

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error

	// DownloadOption configures a download task.
	DownloadOption = download.Option

	// ConnectionKey identifies a pooled socket connection.
	ConnectionKey = socket.Key
)

// ////////////////////////////////////////////////////////////////////
// Sentinel errors
// ////////////////////////////////////////////////////////////////////

var (
	// ErrUnroutable indicates no route serves the descriptor's kind.
	ErrUnroutable = errs.ErrUnroutable

	// ErrWrongTaskKind is wrapped by [WrongKindError].
	ErrWrongTaskKind = errs.ErrWrongTaskKind

	// ErrTransport is wrapped by [TransportError].
	ErrTransport = errs.ErrTransport

	// ErrAdaptation is wrapped by [AdaptationError].
	ErrAdaptation = errs.ErrAdaptation

	// ErrDecode is wrapped by [DecodeError].
	ErrDecode = errs.ErrDecode

	// ErrSocketClosed is delivered to stream subscribers when their
	// connection is closed on request.
	ErrSocketClosed = errs.ErrCancelled

	// ErrTaskCancelled is returned by [Task.Result] after a successful cancel.
	ErrTaskCancelled = task.ErrCancelled

	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled
)

// ////////////////////////////////////////////////////////////////////
// Download option forwarding functions
// ////////////////////////////////////////////////////////////////////

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithProgressLog enables periodic download progress logging.
func WithProgressLog() DownloadOption { return download.WithProgress() }

// WithSkipExisting causes a download to succeed immediately when
// the destination file already exists.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }
