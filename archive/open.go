package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gobeaver/panefs"
)

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	password string
	format   Format
	tempDir  string
}

// WithPassword sets the password for encrypted rar and 7z archives.
func WithPassword(password string) OpenOption {
	return func(o *openOptions) {
		o.password = password
	}
}

// WithFormat skips detection and reads the container as format.
func WithFormat(format Format) OpenOption {
	return func(o *openOptions) {
		o.format = format
	}
}

// WithTempDir sets where containers are spooled when they need random
// access and the backend only streams. Defaults to os.TempDir().
func WithTempDir(dir string) OpenOption {
	return func(o *openOptions) {
		o.tempDir = dir
	}
}

// Open detects the container format of f and returns a stream over its
// entries. Zip and 7z read through f's random access when the backend has
// it; otherwise the container is first spooled to a temporary file.
func Open(ctx context.Context, f panefs.File, opts ...OpenOption) (*Reader, error) {
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}
	name := f.Location().String()

	rr, err := f.OpenRandomRead(ctx)
	switch {
	case err == nil:
		return openRandom(name, rr, o)
	case panefs.IsUnsupported(err):
		// Fall through to the streaming path.
	default:
		return nil, err
	}

	rc, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(rc, HeadSize)
	format := o.format
	if format == FormatUnknown {
		head, err := br.Peek(HeadSize)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			_ = rc.Close()
			return nil, err
		}
		format = Detect(name, head)
	}

	stream := readCloser{Reader: br, Closer: rc}
	if format.NeedsRandomAccess() {
		return spool(ctx, name, stream, format, o)
	}
	return openSequential(name, stream, format, o)
}

func openRandom(name string, rr panefs.RandomReader, o *openOptions) (*Reader, error) {
	format := o.format
	if format == FormatUnknown {
		head := make([]byte, HeadSize)
		n, err := rr.ReadAt(head, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			_ = rr.Close()
			return nil, err
		}
		format = Detect(name, head[:n])
	}

	switch format {
	case FormatZip:
		return NewZipStream(name, rr, rr.Size(), rr)
	case Format7z:
		return NewSevenZipStream(name, rr, rr.Size(), rr, o.password)
	}
	if _, err := rr.Seek(0, io.SeekStart); err != nil {
		_ = rr.Close()
		return nil, err
	}
	return openSequential(name, rr, format, o)
}

func openSequential(name string, rc io.ReadCloser, format Format, o *openOptions) (*Reader, error) {
	switch format {
	case FormatTar, FormatTarGzip, FormatTarBzip2, FormatTarZstd, FormatTarXz:
		return NewTarStream(name, rc, format)
	case FormatRar:
		return NewRarStream(name, rc, o.password)
	case FormatLST:
		return NewLSTStream(name, rc)
	default:
		_ = rc.Close()
		return nil, malformed(name, fmt.Errorf("unrecognized container format"))
	}
}

// spool copies a stream to a temporary file so that formats with a trailing
// directory can be read. The file is removed when the stream is closed.
func spool(ctx context.Context, name string, rc io.ReadCloser, format Format, o *openOptions) (*Reader, error) {
	defer rc.Close()

	tmp, err := os.CreateTemp(o.tempDir, "panefs-archive-*")
	if err != nil {
		return nil, err
	}
	cleanup := closerFunc(func() error {
		return errors.Join(tmp.Close(), os.Remove(tmp.Name()))
	})

	size, err := io.Copy(tmp, ctxReader{ctx: ctx, r: rc})
	if err != nil {
		_ = cleanup.Close()
		return nil, err
	}

	if format == Format7z {
		return NewSevenZipStream(name, tmp, size, cleanup, o.password)
	}
	return NewZipStream(name, tmp, size, cleanup)
}

type readCloser struct {
	io.Reader
	io.Closer
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	select {
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	default:
	}
	return c.r.Read(p)
}
