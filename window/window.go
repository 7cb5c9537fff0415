// Package window pages a large byte source through a fixed-size buffer so
// that byte-at-a-time consumers, such as pattern search, can address any
// offset of a file without loading it.
package window

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gobeaver/panefs"
)

// DefaultCapacity is the buffer size used when none is configured.
const DefaultCapacity = 64 << 10

// Strategy decides where a refill positions the window relative to the
// requested offset.
type Strategy int

const (
	// Centered places the requested offset in the middle of the window.
	Centered Strategy = iota
	// Forward starts the window at the requested offset and never moves
	// it backwards. Used while scanning towards the end.
	Forward
	// Backward ends the window at the requested offset. Used while scanning
	// towards the start.
	Backward
)

func (s Strategy) String() string {
	switch s {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "centered"
	}
}

// Window is a fixed-capacity view over a Source. It is not safe for
// concurrent use; concurrent scans need a Window (and Source) each.
type Window struct {
	src      Source
	buf      []byte
	start    int64
	valid    int
	size     int64
	strategy Strategy
	refills  int
	logger   *slog.Logger
	closed   bool
}

// Option configures a Window.
type Option func(*Window)

// WithCapacity sets the buffer size. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(w *Window) {
		if n > 0 {
			w.buf = make([]byte, n)
		}
	}
}

// WithStrategy sets the initial refill strategy.
func WithStrategy(s Strategy) Option {
	return func(w *Window) {
		w.strategy = s
	}
}

// WithLogger sets the logger used for refill tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Window) {
		w.logger = logger
	}
}

// New creates a window over src. The window owns src and closes it on Close.
func New(src Source, opts ...Option) *Window {
	w := &Window{
		src:    src,
		size:   -1,
		logger: panefs.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if mb, ok := src.(memoryBacked); ok {
		w.buf = mb.Bytes()
		w.valid = len(w.buf)
	} else if w.buf == nil {
		w.buf = make([]byte, DefaultCapacity)
	}
	return w
}

// Capacity returns the buffer size.
func (w *Window) Capacity() int { return len(w.buf) }

// Strategy returns the current refill strategy.
func (w *Window) Strategy() Strategy { return w.strategy }

// SetStrategy changes the refill strategy for subsequent misses.
func (w *Window) SetStrategy(s Strategy) { w.strategy = s }

// Refills returns how many times the window was refilled.
func (w *Window) Refills() int { return w.refills }

// Size returns the total size of the source. It is queried once and
// cached for the lifetime of the window.
func (w *Window) Size() (int64, error) {
	if w.size >= 0 {
		return w.size, nil
	}
	size, err := w.src.Size()
	if err != nil {
		return 0, fmt.Errorf("query size: %w", err)
	}
	w.size = size
	return size, nil
}

// ByteAt returns the byte at offset off of the source. A miss refills the
// window exactly once; if the refilled window still does not hold off,
// ErrInternalInconsistency is returned.
func (w *Window) ByteAt(off int64) (byte, error) {
	if w.closed {
		return 0, panefs.ErrClosed
	}

	size, err := w.Size()
	if err != nil {
		return 0, err
	}
	if off < 0 || off >= size {
		return 0, fmt.Errorf("%w: offset %d, size %d", panefs.ErrOutOfRange, off, size)
	}

	if b, ok := w.lookup(off); ok {
		return b, nil
	}

	if err := w.refill(off); err != nil {
		return 0, err
	}

	if b, ok := w.lookup(off); ok {
		return b, nil
	}
	return 0, fmt.Errorf("%w: offset %d outside window [%d, %d) after refill",
		panefs.ErrInternalInconsistency, off, w.start, w.start+int64(w.valid))
}

func (w *Window) lookup(off int64) (byte, bool) {
	if off < w.start || off >= w.start+int64(w.valid) {
		return 0, false
	}
	return w.buf[off-w.start], true
}

// startFor returns the window start a refill for target should use.
func (w *Window) startFor(target int64) int64 {
	capacity := int64(len(w.buf))

	var start int64
	switch w.strategy {
	case Forward:
		start = target
	case Backward:
		start = target - capacity + 1
	default:
		if w.src.RandomAccess() {
			start = target - capacity/2
		} else {
			// Backward seeks on a sequential source cost a reopen.
			start = target
		}
	}
	return max(start, 0)
}

func (w *Window) refill(target int64) error {
	if _, ok := w.src.(memoryBacked); ok {
		return nil
	}

	start := w.startFor(target)
	n := min(int64(len(w.buf)), w.size-start)

	read, err := w.src.ReadAt(w.buf[:n], start)
	w.refills++
	if err != nil && !(errors.Is(err, io.EOF) && read > 0) {
		w.valid = 0
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("refill at offset %d: %w", start, err)
	}

	w.start = start
	w.valid = read
	w.logger.Debug("window refilled",
		"target", target,
		"start", start,
		"valid", read,
		"strategy", w.strategy.String(),
	)
	return nil
}

// Close releases the source. It is safe to call more than once.
func (w *Window) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.src.Close()
}
