// Package objstore holds the pieces shared by the object storage drivers:
// mapping paths to keys under a prefix, buffering uploads, and snapshots
// for polling watches.
package objstore

import (
	"bytes"
	"errors"
	"path"
	"strings"
	"sync"
	"time"
)

// Keys maps slash paths to object keys below a prefix. Directories are
// key prefixes ending in "/".
type Keys struct {
	prefix string
}

// NewKeys returns a mapping rooted at prefix ("" for the whole bucket).
func NewKeys(prefix string) Keys {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return Keys{prefix: prefix}
}

// Clean returns p as a cleaned absolute path.
func Clean(p string) string {
	return path.Clean("/" + p)
}

// Prefix returns the root prefix, "" or ending in "/".
func (k Keys) Prefix() string { return k.prefix }

// Key maps a file path to its object key.
func (k Keys) Key(p string) string {
	return k.prefix + strings.TrimPrefix(Clean(p), "/")
}

// DirKey maps a directory path to the prefix its children share. It is also
// the key of the directory's marker object.
func (k Keys) DirKey(p string) string {
	if Clean(p) == "/" {
		return k.prefix
	}
	return k.Key(p) + "/"
}

// Path maps an object key or prefix back to a path.
func (k Keys) Path(key string) string {
	return Clean(strings.TrimSuffix(strings.TrimPrefix(key, k.prefix), "/"))
}

// Rel maps a key to the path relative to the root, as matched by watch
// patterns.
func (k Keys) Rel(key string) string {
	return strings.TrimPrefix(k.Path(key), "/")
}

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("writer already closed")

// Writer buffers content and hands it to commit on Close. Object stores
// need the full length before an upload starts.
type Writer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	commit func([]byte) error
	closed bool
}

// NewWriter returns a Writer that uploads through commit.
func NewWriter(commit func([]byte) error) *Writer {
	return &Writer{commit: commit}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	return w.buf.Write(p)
}

// Close commits the buffered content. Later calls are no-ops.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.commit(w.buf.Bytes())
}

// ObjectState is what a polling watch compares between two listings.
type ObjectState struct {
	ModTime time.Time
	Size    int64
}

// Snapshot maps relative paths to their state.
type Snapshot map[string]ObjectState

// Equal reports whether s and o describe the same objects.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for k, v := range s {
		w, ok := o[k]
		if !ok || !v.ModTime.Equal(w.ModTime) || v.Size != w.Size {
			return false
		}
	}
	return true
}
