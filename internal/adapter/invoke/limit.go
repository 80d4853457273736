package invoke

import (
	"io"
	"sync"
)

// LimitedWriter caps the bytes kept from a stream. Writes past the cap are
// reported as successful so the child process never blocks on a full pipe.
type LimitedWriter struct {
	mu        sync.Mutex
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

// NewLimitedWriter keeps at most max bytes written to w.
func NewLimitedWriter(w io.Writer, max int64) *LimitedWriter {
	return &LimitedWriter{w: w, max: max}
}

func (lw *LimitedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // report the full length so callers never see io.ErrShortWrite
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}

// Truncated reports whether any bytes were dropped.
func (lw *LimitedWriter) Truncated() bool {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.truncated
}
