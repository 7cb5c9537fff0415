package panefs

import (
	"errors"
	"fmt"
)

// Common filesystem errors
var (
	ErrNotExist      = errors.New("file does not exist")
	ErrExist         = errors.New("file already exists")
	ErrPermission    = errors.New("permission denied")
	ErrClosed        = errors.New("file already closed")
	ErrNotDir        = errors.New("not a directory")
	ErrIsDir         = errors.New("is a directory")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidOffset = errors.New("invalid offset")
	ErrInvalidWhence = errors.New("invalid whence")
	ErrNotSupported  = errors.New("operation not supported")
	ErrNotAllowed    = errors.New("operation not allowed")
	ErrReadOnly      = errors.New("filesystem is read-only")
	ErrNoSpace       = errors.New("no space left")

	// ErrOutOfRange is returned for a byte offset outside the data source.
	ErrOutOfRange = errors.New("offset out of range")

	// ErrInternalInconsistency is returned when a refilled window still does
	// not cover the requested offset. It always indicates a bug.
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// ErrMalformedContainer is returned when an archive entry cannot be parsed.
	ErrMalformedContainer = errors.New("malformed container")

	// ErrCrossRealm is returned by operations that only work between two
	// locations of the same realm.
	ErrCrossRealm = errors.New("locations are in different realms")
)

// PathError records an error and the operation and file path that caused it
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// Operation names a file operation that a backend may not support.
type Operation string

const (
	OpList        Operation = "list"
	OpRead        Operation = "read"
	OpWrite       Operation = "write"
	OpAppend      Operation = "append"
	OpRandomRead  Operation = "random-read"
	OpRandomWrite Operation = "random-write"
	OpMkdir       Operation = "mkdir"
	OpDelete      Operation = "delete"
	OpRename      Operation = "rename"
	OpCopyRemote  Operation = "copy-remote"
	OpPermissions Operation = "permissions"
	OpOwner       Operation = "owner"
	OpGroup       Operation = "group"
	OpSymlink     Operation = "symlink"
	OpModTime     Operation = "modtime"
	OpSize        Operation = "size"
	OpChecksum    Operation = "checksum"
	OpWatch       Operation = "watch"
)

// UnsupportedError reports that a backend fundamentally cannot perform an
// operation. Callers must treat it as permanent for that backend.
type UnsupportedError struct {
	Op      Operation
	Backend string
}

func (e *UnsupportedError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotSupported)
	}
	return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Op, ErrNotSupported)
}

// Is makes errors.Is(err, ErrNotSupported) hold for every UnsupportedError.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrNotSupported
}

// Unsupported returns an UnsupportedError for op on the named backend.
func Unsupported(backend string, op Operation) error {
	return &UnsupportedError{Op: op, Backend: backend}
}

// IsUnsupported reports whether err signals an unsupported operation.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// UnsupportedOp returns the operation carried by an UnsupportedError in err's chain.
func UnsupportedOp(err error) (Operation, bool) {
	var ue *UnsupportedError
	if errors.As(err, &ue) {
		return ue.Op, true
	}
	return "", false
}

// IsNotExist reports whether an error indicates that a file or directory
// does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsExist reports whether an error indicates that a file or directory
// already exists
func IsExist(err error) bool {
	return errors.Is(err, ErrExist)
}

// IsPermission reports whether an error indicates that permission is denied
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}
