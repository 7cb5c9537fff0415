// Package archive iterates the entries of container files (zip, tar and its
// compressed variants, rar, 7z and lst listings) one at a time, without
// materializing the whole listing up front.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/gobeaver/panefs"
)

// Entry describes one member of a container. Directory paths end in "/".
type Entry struct {
	Path    string
	IsDir   bool
	ModTime time.Time
	Size    int64

	// HasAttrs reports whether Mode, Owner and Group came from the
	// container rather than being left empty.
	HasAttrs bool
	Mode     fs.FileMode
	Owner    string
	Group    string
}

// Name returns the last element of the entry path.
func (e Entry) Name() string {
	p := strings.TrimSuffix(e.Path, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Stream is a forward-only, finite sequence of entries. It cannot be
// restarted; open the container again to iterate twice.
type Stream interface {
	// Next returns the next entry. It returns false once the container is
	// exhausted and keeps returning false on later calls.
	Next() (Entry, bool, error)

	// Close releases the container. It may be called before the end of
	// the sequence and more than once.
	Close() error
}

// ContentStream is a Stream that can also read the current entry's content.
type ContentStream interface {
	Stream

	// Content returns a reader for the entry last returned by Next. It is
	// invalidated by the next call to Next.
	Content() (io.Reader, error)
}

// Reader is the Stream implementation shared by every format. Formats plug
// in a function that decodes the next raw record.
type Reader struct {
	name    string
	format  Format
	next    func() (Entry, bool, error)
	content func() (io.Reader, error)
	closers []io.Closer

	// current is the content reader handed out for the current entry.
	current io.Closer

	done   bool
	err    error
	closed bool
}

var _ ContentStream = (*Reader)(nil)

func newReader(name string, format Format, closers ...io.Closer) *Reader {
	r := &Reader{name: name, format: format}
	for _, c := range closers {
		if c != nil {
			r.closers = append(r.closers, c)
		}
	}
	return r
}

// Format returns the container format being read.
func (r *Reader) Format() Format { return r.format }

// Next implements Stream. Decoding errors are sticky: once Next failed,
// every later call returns the same error.
func (r *Reader) Next() (Entry, bool, error) {
	if r.closed {
		return Entry{}, false, panefs.ErrClosed
	}
	if r.err != nil {
		return Entry{}, false, r.err
	}
	if r.done {
		return Entry{}, false, nil
	}
	// The previous entry's content is invalid from here on.
	_ = r.releaseContent()

	e, ok, err := r.next()
	if err != nil {
		r.err = classify(r.name, err)
		return Entry{}, false, r.err
	}
	if !ok {
		r.done = true
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Content implements ContentStream.
func (r *Reader) Content() (io.Reader, error) {
	if r.closed {
		return nil, panefs.ErrClosed
	}
	if r.content == nil {
		return nil, panefs.Unsupported(r.format.String(), panefs.OpRead)
	}
	return r.content()
}

// Close implements Stream.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.releaseContent(); err != nil {
		errs = append(errs, err)
	}
	// Close decoders before the handles they read from.
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reader) addCloser(c io.Closer) {
	r.closers = append(r.closers, c)
}

// setContent records rc as the current entry's content reader, closing the
// one it replaces.
func (r *Reader) setContent(rc io.Closer) {
	_ = r.releaseContent()
	r.current = rc
}

func (r *Reader) releaseContent() error {
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

// classify wraps decoder failures as ErrMalformedContainer. Transport
// errors from the underlying handle are passed through unchanged.
func classify(name string, err error) error {
	var pathErr *fs.PathError
	var netErr net.Error
	if errors.As(err, &pathErr) || errors.As(err, &netErr) || errors.Is(err, panefs.ErrMalformedContainer) {
		return &panefs.PathError{Op: "next", Path: name, Err: err}
	}
	return &panefs.PathError{Op: "next", Path: name, Err: fmt.Errorf("%w: %w", panefs.ErrMalformedContainer, err)}
}

func malformed(name string, err error) error {
	return &panefs.PathError{Op: "open", Path: name, Err: fmt.Errorf("%w: %w", panefs.ErrMalformedContainer, err)}
}

// dirPath normalizes an entry name: forward slashes, no leading slash or
// "./", and a trailing slash for directories.
func dirPath(name string, isDir bool) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimLeft(name, "/")
	if isDir && name != "" && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

// Collect drains s and returns every entry. It does not close s.
func Collect(s Stream) ([]Entry, error) {
	var entries []Entry
	for {
		e, ok, err := s.Next()
		if err != nil {
			return entries, err
		}
		if !ok {
			return entries, nil
		}
		entries = append(entries, e)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
