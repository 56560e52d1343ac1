package download

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// progressWriter counts bytes written through it. It logs at most once
// per second when log is set, and reports the completed fraction of a
// known-length body after every write.
type progressWriter struct {
	w           io.Writer
	logger      *slog.Logger
	log         bool
	report      func(float64)
	transferred int64
	total       int64
	startTime   time.Time
	lastLog     time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.transferred += int64(n)

	if pw.total > 0 {
		pw.report(float64(pw.transferred) / float64(pw.total))
	}

	if !pw.log {
		return n, err
	}

	if time.Since(pw.lastLog) >= time.Second {
		pw.lastLog = time.Now()
		pw.logLine("downloading")
	}

	if pw.total >= 0 && pw.transferred == pw.total {
		pw.logLine("download complete")
	}

	return n, err
}

func (pw *progressWriter) logLine(msg string) {
	elapsed := time.Since(pw.startTime)
	attrs := []any{
		"elapsed", elapsed.Round(time.Millisecond),
		"transferred", pw.transferred,
		"total", pw.total,
		"mbps", fmt.Sprintf("%.2f", float64(pw.transferred)/elapsed.Seconds()/(1024*1024)),
	}
	if pw.total > 0 {
		attrs = append(attrs, "progress", fmt.Sprintf("%.1f%%", float64(pw.transferred)/float64(pw.total)*100))
	}
	pw.logger.Info(msg, attrs...)
}
