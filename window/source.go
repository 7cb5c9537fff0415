package window

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gobeaver/panefs"
)

// Source is the data a Window pages over.
type Source interface {
	// Size returns the total number of bytes in the source.
	Size() (int64, error)

	// ReadAt reads len(p) bytes at off, with io.ReaderAt semantics.
	ReadAt(p []byte, off int64) (int, error)

	// RandomAccess reports whether reads at arbitrary offsets are cheap.
	RandomAccess() bool

	Close() error
}

// memoryBacked is implemented by sources whose whole content is in memory.
type memoryBacked interface {
	Bytes() []byte
}

// RandomAccessSource serves reads from an io.ReaderAt.
type RandomAccessSource struct {
	r      io.ReaderAt
	size   int64
	closer io.Closer
	once   sync.Once
}

// NewRandomAccessSource wraps r. closer may be nil.
func NewRandomAccessSource(r io.ReaderAt, size int64, closer io.Closer) *RandomAccessSource {
	return &RandomAccessSource{r: r, size: size, closer: closer}
}

// NewFileSource wraps an open local file. The source owns f.
func NewFileSource(f *os.File) (*RandomAccessSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return NewRandomAccessSource(f, info.Size(), f), nil
}

func (s *RandomAccessSource) Size() (int64, error) { return s.size, nil }
func (s *RandomAccessSource) RandomAccess() bool   { return true }

func (s *RandomAccessSource) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

func (s *RandomAccessSource) Close() error {
	var err error
	s.once.Do(func() {
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// SequentialSource serves reads from a stream that can only move forward.
// A read behind the current position reopens the stream and skips ahead.
type SequentialSource struct {
	open   func() (io.ReadCloser, error)
	sizeFn func() (int64, error)

	rc    io.ReadCloser
	pos   int64
	opens int
}

// NewSequentialSource creates a source from a stream opener and a size
// function. The opener is called lazily on the first read and again on
// every backward seek.
func NewSequentialSource(open func() (io.ReadCloser, error), size func() (int64, error)) *SequentialSource {
	return &SequentialSource{open: open, sizeFn: size}
}

func (s *SequentialSource) Size() (int64, error) { return s.sizeFn() }
func (s *SequentialSource) RandomAccess() bool   { return false }

// Opens returns how many times the underlying stream was opened.
func (s *SequentialSource) Opens() int { return s.opens }

func (s *SequentialSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, panefs.ErrInvalidOffset
	}

	if s.rc == nil || off < s.pos {
		if err := s.reopen(); err != nil {
			return 0, err
		}
	}

	if skip := off - s.pos; skip > 0 {
		n, err := io.CopyN(io.Discard, s.rc, skip)
		s.pos += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, err
		}
	}

	n, err := io.ReadFull(s.rc, p)
	s.pos += int64(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (s *SequentialSource) reopen() error {
	if s.rc != nil {
		_ = s.rc.Close()
		s.rc = nil
	}
	rc, err := s.open()
	if err != nil {
		return fmt.Errorf("reopen stream: %w", err)
	}
	s.rc = rc
	s.pos = 0
	s.opens++
	return nil
}

func (s *SequentialSource) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	return err
}

// MemorySource is a source whose entire content is a byte slice.
type MemorySource struct {
	data []byte
}

// NewMemorySource wraps data without copying it.
func NewMemorySource(data []byte) *MemorySource {
	return &MemorySource{data: data}
}

func (s *MemorySource) Size() (int64, error) { return int64(len(s.data)), nil }
func (s *MemorySource) RandomAccess() bool   { return true }
func (s *MemorySource) Bytes() []byte        { return s.data }
func (s *MemorySource) Close() error         { return nil }

func (s *MemorySource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, panefs.ErrInvalidOffset
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// SourceFor opens f as a Source. Random access is used when the backend
// offers it; a backend that reports random reads as unsupported gets a
// sequential source over its plain read stream instead.
//
// The returned source keeps using ctx for reopening streams.
func SourceFor(ctx context.Context, f panefs.File) (Source, error) {
	rr, err := f.OpenRandomRead(ctx)
	if err == nil {
		return NewRandomAccessSource(rr, rr.Size(), rr), nil
	}
	if op, ok := panefs.UnsupportedOp(err); !ok || op != panefs.OpRandomRead {
		return nil, err
	}

	size, err := f.Size(ctx)
	if err != nil {
		return nil, err
	}
	return NewSequentialSource(
		func() (io.ReadCloser, error) { return f.Open(ctx) },
		func() (int64, error) { return size, nil },
	), nil
}
