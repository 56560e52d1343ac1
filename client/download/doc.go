// Package download streams HTTP response bodies to disk with optional
// checksum validation and progress reporting.
//
// [Handle] writes the response body to a temporary file alongside the
// destination path, then atomically renames it on success:
//
//	n, err := download.Handle(ctx, resp.Body, resp.ContentLength, destPath, logger,
//		download.WithProgressFunc(func(f float64) { ... }),
//	)
//
// Most callers should use the download task kind of the
// [github.com/adamwoolhether/netlayer/client] package, which invokes
// Handle internally and re-exports the download options.
package download
