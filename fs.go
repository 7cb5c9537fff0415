package panefs

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// Attr is a bit set naming the optional FileInfo fields a backend filled in.
type Attr uint16

const (
	AttrSize Attr = 1 << iota
	AttrModTime
	AttrMode
	AttrOwner
	AttrGroup
	AttrSymlink
)

// FileInfo represents file/directory metadata.
//
// Fields covered by an Attr bit are only meaningful when that bit is set in
// Attrs. A backend that cannot report a value leaves the bit clear rather
// than filling in a guess.
type FileInfo struct {
	Name        string
	Path        string
	Size        int64
	ModTime     time.Time
	IsDir       bool
	IsSymlink   bool
	Mode        fs.FileMode
	Owner       string
	Group       string
	ContentType string
	Attrs       Attr
}

// Has reports whether all attributes in a are known.
func (fi *FileInfo) Has(a Attr) bool {
	return fi.Attrs&a == a
}

// ============================================================================
// Core Interfaces (Interface Segregation)
// ============================================================================

// FileReader provides read-only filesystem access. Paths are slash
// separated and rooted at the backend's realm ("/" is the root), the same
// form as Location.Path.
type FileReader interface {
	// Stat returns metadata, or an error wrapping ErrNotExist.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// List returns the immediate children of a directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// Open returns a stream for reading file content.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// FileWriter provides write filesystem operations.
type FileWriter interface {
	// Create truncates or creates the file. Content becomes visible once the
	// writer is closed.
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Mkdir creates a directory and any missing parents.
	Mkdir(ctx context.Context, path string) error

	// Delete removes a file or an empty directory.
	Delete(ctx context.Context, path string) error

	// Rename moves src to dst within the same backend.
	Rename(ctx context.Context, src, dst string) error
}

// FileSystem is the contract every backend implements. Operations a backend
// cannot perform return an *UnsupportedError.
type FileSystem interface {
	FileReader
	FileWriter

	// Name identifies the backend kind ("local", "s3", ...).
	Name() string
}

// RandomReader is a random-access read handle.
type RandomReader interface {
	io.ReadSeekCloser
	io.ReaderAt
	Size() int64
}

// RandomWriter is a random-access write handle.
type RandomWriter interface {
	io.WriteSeeker
	io.WriterAt
	io.Closer
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================
// Use type assertion to check if a backend supports a capability:
//
//	if copier, ok := fs.(CanCopy); ok {
//	    copier.Copy(ctx, src, dst)
//	}
//
// File performs these checks and turns a missing capability into an
// *UnsupportedError.

// CanAppend indicates the backend can open a file for appending.
type CanAppend interface {
	Append(ctx context.Context, path string) (io.WriteCloser, error)
}

// CanRandomRead indicates the backend can serve random-access reads.
type CanRandomRead interface {
	OpenRandom(ctx context.Context, path string) (RandomReader, error)
}

// CanRandomWrite indicates the backend can serve random-access writes.
type CanRandomWrite interface {
	OpenRandomWrite(ctx context.Context, path string) (RandomWriter, error)
}

// CanCopy indicates the backend supports server-side copy.
// Native copy is more efficient than read+write for same-backend operations.
type CanCopy interface {
	Copy(ctx context.Context, src, dst string) error
}

// ============================================================================
// Checksum Interface
// ============================================================================

// ChecksumAlgorithm represents a supported checksum algorithm
type ChecksumAlgorithm string

const (
	// ChecksumMD5 is the MD5 hash algorithm (128-bit, fast but not cryptographically secure)
	ChecksumMD5 ChecksumAlgorithm = "md5"
	// ChecksumSHA1 is the SHA-1 hash algorithm (160-bit, legacy)
	ChecksumSHA1 ChecksumAlgorithm = "sha1"
	// ChecksumSHA256 is the SHA-256 hash algorithm (256-bit, recommended)
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	// ChecksumSHA512 is the SHA-512 hash algorithm
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
	// ChecksumCRC32 is the CRC32 checksum (32-bit, for integrity only)
	ChecksumCRC32 ChecksumAlgorithm = "crc32"
	// ChecksumXXHash is the xxHash algorithm (64-bit, extremely fast)
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
)

// CanChecksum indicates the backend can compute checksums without the
// caller streaming the content (e.g. a remote hashing command).
type CanChecksum interface {
	Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error)
}

// ============================================================================
// File Watching Interface (ChangeToken Pattern)
// ============================================================================

// ChangeToken represents a change notification token.
//
// Consumers can either poll HasChanged() or register a callback via
// RegisterChangeCallback(). Check ActiveChangeCallbacks() to know which
// approach is more efficient for the underlying implementation.
type ChangeToken interface {
	// HasChanged returns true if a change has occurred.
	// Once true, it remains true (tokens are single-use).
	HasChanged() bool

	// ActiveChangeCallbacks indicates if the token proactively raises callbacks.
	ActiveChangeCallbacks() bool

	// RegisterChangeCallback registers a callback to be invoked when change occurs.
	// Returns a function to unregister the callback.
	RegisterChangeCallback(callback func()) (unregister func())
}

// CanWatch indicates the backend supports change notifications.
//
//	if watcher, ok := fs.(CanWatch); ok {
//	    token, err := watcher.Watch(ctx, "**/*.json")
//	    ...
//	}
type CanWatch interface {
	// Watch creates a change token for a glob pattern such as "**/*.txt".
	// The token signals when any matching file is created, modified, or deleted.
	Watch(ctx context.Context, pattern string) (ChangeToken, error)
}
