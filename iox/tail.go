package iox

import "sync"

// TailBuffer is an io.Writer that keeps only the last Limit bytes written.
// Safe for concurrent use. Used to capture a child process's stderr for
// error messages without unbounded growth.
type TailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

// NewTailBuffer creates a TailBuffer retaining at most limit bytes.
func NewTailBuffer(limit int) *TailBuffer {
	return &TailBuffer{limit: max(limit, 0)}
}

// Write appends p, discarding the oldest bytes beyond the limit.
// It always reports len(p) bytes written.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit == 0 {
		return len(p), nil
	}
	if len(p) >= t.limit {
		t.buf = append(t.buf[:0], p[len(p)-t.limit:]...)
		return len(p), nil
	}

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// String returns the retained bytes.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
