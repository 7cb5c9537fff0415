// Package ranged turns a ranged fetch (an HTTP Range request, an SFTP
// ReadAt, ...) into a seekable random-access reader.
package ranged

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Fetch returns a stream of at most n bytes starting at off.
type Fetch func(ctx context.Context, off, n int64) (io.ReadCloser, error)

var (
	errClosed        = errors.New("reader already closed")
	errInvalidWhence = errors.New("invalid whence")
	errNegative      = errors.New("negative position")
)

// Reader reads an object of known size through Fetch. Sequential Reads
// reuse one open stream; ReadAt and Seek open a new one when needed.
type Reader struct {
	ctx   context.Context
	fetch Fetch
	size  int64

	mu     sync.Mutex
	pos    int64
	body   io.ReadCloser
	bodyAt int64
	closed bool
}

// New creates a Reader over an object of size bytes.
func New(ctx context.Context, size int64, fetch Fetch) *Reader {
	return &Reader{ctx: ctx, fetch: fetch, size: size}
}

// Size returns the object size.
func (r *Reader) Size() int64 { return r.size }

// ReadAt reads len(p) bytes at off with a dedicated request.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegative
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return 0, errClosed
	}
	if off >= r.size {
		return 0, io.EOF
	}

	n := int64(len(p))
	if rest := r.size - off; n > rest {
		n = rest
	}
	if n == 0 {
		return 0, nil
	}

	body, err := r.fetch(r.ctx, off, n)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	got, err := io.ReadFull(body, p[:n])
	if err != nil {
		return got, fmt.Errorf("read %d bytes at %d: %w", n, off, err)
	}
	if got < len(p) {
		return got, io.EOF
	}
	return got, nil
}

// Read reads from the current position, keeping the stream open between
// calls.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errClosed
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if r.body == nil || r.bodyAt != r.pos {
		r.dropBody()
		body, err := r.fetch(r.ctx, r.pos, r.size-r.pos)
		if err != nil {
			return 0, err
		}
		r.body, r.bodyAt = body, r.pos
	}

	n, err := r.body.Read(p)
	r.pos += int64(n)
	r.bodyAt = r.pos
	if err == io.EOF {
		r.dropBody()
		if r.pos < r.size {
			err = io.ErrUnexpectedEOF
		}
	}
	return n, err
}

// Seek sets the position for the next Read.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errClosed
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, errInvalidWhence
	}
	if abs < 0 {
		return 0, errNegative
	}
	r.pos = abs
	return abs, nil
}

// Close releases the open stream. It is safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.dropBody()
}

func (r *Reader) dropBody() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}
