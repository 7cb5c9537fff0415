package panefs

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ============================================================================
// ReadOnlyFileSystem Decorator
// ============================================================================

// ReadOnlyFileSystem wraps a FileSystem and refuses every mutation with an
// error that matches both ErrReadOnly and ErrNotSupported. Archive views and
// panes opened for browsing only use it.
//
//	fsys, _ := local.New("/data")
//	view := panefs.NewReadOnlyFileSystem(fsys)
//	f := panefs.NewFile(view, panefs.MustParseLocation("file:///data/report.txt"))
//
//	_, err := f.Create(ctx) // panefs.IsUnsupported(err) == true
type ReadOnlyFileSystem struct {
	fs   FileSystem
	opts ReadOnlyOptions
}

// ReadOnlyOptions configures the ReadOnlyFileSystem behavior.
type ReadOnlyOptions struct {
	// AllowMkdir permits directory creation even in read-only mode.
	AllowMkdir bool

	// AllowDelete permits deletion in read-only mode.
	AllowDelete bool

	// OnWriteAttempt is called when a mutation is attempted. If it returns
	// nil the mutation is allowed; its error is returned otherwise.
	OnWriteAttempt func(op Operation, path string) error
}

// ReadOnlyOption is a functional option for configuring ReadOnlyFileSystem.
type ReadOnlyOption func(*ReadOnlyOptions)

// WithAllowMkdir allows directory creation in read-only mode.
func WithAllowMkdir(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowMkdir = allow
	}
}

// WithAllowDelete allows deletion in read-only mode.
func WithAllowDelete(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowDelete = allow
	}
}

// WithWriteAttemptHandler sets a custom handler for mutation attempts.
func WithWriteAttemptHandler(handler func(op Operation, path string) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.OnWriteAttempt = handler
	}
}

// NewReadOnlyFileSystem creates a read-only wrapper around a FileSystem.
func NewReadOnlyFileSystem(fs FileSystem, opts ...ReadOnlyOption) *ReadOnlyFileSystem {
	options := ReadOnlyOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &ReadOnlyFileSystem{
		fs:   fs,
		opts: options,
	}
}

// Unwrap returns the underlying FileSystem.
func (r *ReadOnlyFileSystem) Unwrap() FileSystem {
	return r.fs
}

// Name reports the wrapped backend's name.
func (r *ReadOnlyFileSystem) Name() string {
	return r.fs.Name()
}

// readOnlyError returns nil when the mutation is allowed.
func (r *ReadOnlyFileSystem) readOnlyError(op Operation, path string) error {
	if r.opts.OnWriteAttempt != nil {
		if err := r.opts.OnWriteAttempt(op, path); err != nil {
			return &PathError{Op: string(op), Path: path, Err: err}
		}
		return nil
	}
	return &PathError{
		Op:   string(op),
		Path: path,
		Err:  fmt.Errorf("%w: %w", ErrReadOnly, Unsupported(r.fs.Name(), op)),
	}
}

// ============================================================================
// Read Operations (Delegated)
// ============================================================================

func (r *ReadOnlyFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return r.fs.Stat(ctx, path)
}

func (r *ReadOnlyFileSystem) List(ctx context.Context, path string) ([]FileInfo, error) {
	return r.fs.List(ctx, path)
}

func (r *ReadOnlyFileSystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.fs.Open(ctx, path)
}

// OpenRandom delegates when the wrapped backend supports random reads.
func (r *ReadOnlyFileSystem) OpenRandom(ctx context.Context, path string) (RandomReader, error) {
	if rr, ok := r.fs.(CanRandomRead); ok {
		return rr.OpenRandom(ctx, path)
	}
	return nil, Unsupported(r.fs.Name(), OpRandomRead)
}

// Checksum delegates to the underlying filesystem if supported.
func (r *ReadOnlyFileSystem) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	if checksummer, ok := r.fs.(CanChecksum); ok {
		return checksummer.Checksum(ctx, path, algorithm)
	}
	return "", Unsupported(r.fs.Name(), OpChecksum)
}

// Watch delegates to the underlying filesystem if supported.
func (r *ReadOnlyFileSystem) Watch(ctx context.Context, filter string) (ChangeToken, error) {
	if watcher, ok := r.fs.(CanWatch); ok {
		return watcher.Watch(ctx, filter)
	}
	return nil, Unsupported(r.fs.Name(), OpWatch)
}

// ============================================================================
// Write Operations (Blocked)
// ============================================================================

func (r *ReadOnlyFileSystem) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := r.readOnlyError(OpWrite, path); err != nil {
		return nil, err
	}
	return r.fs.Create(ctx, path)
}

func (r *ReadOnlyFileSystem) Mkdir(ctx context.Context, path string) error {
	if !r.opts.AllowMkdir {
		if err := r.readOnlyError(OpMkdir, path); err != nil {
			return err
		}
	}
	return r.fs.Mkdir(ctx, path)
}

func (r *ReadOnlyFileSystem) Delete(ctx context.Context, path string) error {
	if !r.opts.AllowDelete {
		if err := r.readOnlyError(OpDelete, path); err != nil {
			return err
		}
	}
	return r.fs.Delete(ctx, path)
}

func (r *ReadOnlyFileSystem) Rename(ctx context.Context, src, dst string) error {
	if err := r.readOnlyError(OpRename, dst); err != nil {
		return err
	}
	return r.fs.Rename(ctx, src, dst)
}

// Close releases the wrapped backend's session.
func (r *ReadOnlyFileSystem) Close() error {
	return closeSession(r.fs)
}

var (
	_ FileSystem    = (*ReadOnlyFileSystem)(nil)
	_ CanRandomRead = (*ReadOnlyFileSystem)(nil)
	_ CanChecksum   = (*ReadOnlyFileSystem)(nil)
	_ CanWatch      = (*ReadOnlyFileSystem)(nil)
)

// IsReadOnlyError checks if an error is due to read-only restrictions.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
