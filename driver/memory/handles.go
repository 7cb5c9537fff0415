package memory

import (
	"bytes"
	"io"
	"sync"

	"github.com/gobeaver/panefs"
)

// memoryWriter buffers a sequential write and commits it on Close.
type memoryWriter struct {
	buf    bytes.Buffer
	commit func([]byte) error
	closed bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, panefs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.commit(w.buf.Bytes())
}

// randomReader is a read handle over an immutable content slice.
type randomReader struct {
	*bytes.Reader
}

func (r *randomReader) Close() error { return nil }

// randomWriter edits a private copy of the content and commits it on Close.
type randomWriter struct {
	mu     sync.Mutex
	buf    []byte
	pos    int64
	commit func([]byte) error
	closed bool
}

func (w *randomWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.writeAtLocked(p, w.pos)
	w.pos += int64(n)
	return n, err
}

func (w *randomWriter) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeAtLocked(p, off)
}

func (w *randomWriter) writeAtLocked(p []byte, off int64) (int, error) {
	if w.closed {
		return 0, panefs.ErrClosed
	}
	if off < 0 {
		return 0, panefs.ErrInvalidOffset
	}
	end := off + int64(len(p))
	if end > int64(len(w.buf)) {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}
	return copy(w.buf[off:], p), nil
}

func (w *randomWriter) Seek(offset int64, whence int) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = w.pos + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, panefs.ErrInvalidWhence
	}
	if abs < 0 {
		return 0, panefs.ErrInvalidOffset
	}
	w.pos = abs
	return abs, nil
}

func (w *randomWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.commit(w.buf)
}
