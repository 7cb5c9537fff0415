package gcs

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gobwas/glob"
	"google.golang.org/api/iterator"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/internal/objstore"
	"github.com/gobeaver/panefs/internal/ranged"
)

// Adapter serves one Google Cloud Storage bucket. Directories work as in
// the s3 driver: implied by key prefixes, with "dir/" marker objects for
// empty ones.
type Adapter struct {
	client       *storage.Client
	bucket       string
	keys         objstore.Keys
	pollInterval time.Duration
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithPrefix roots the adapter at a key prefix inside the bucket.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		a.keys = objstore.NewKeys(prefix)
	}
}

// WithPollInterval sets how often Watch lists the bucket (default: 30 seconds).
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// New creates an adapter for bucket.
func New(client *storage.Client, bucket string, options ...AdapterOption) *Adapter {
	a := &Adapter{
		client:       client,
		bucket:       bucket,
		pollInterval: 30 * time.Second,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Name implements panefs.FileSystem.
func (a *Adapter) Name() string { return "gcs" }

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) object(key string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(key)
}

func fileInfo(p string, attrs *storage.ObjectAttrs) *panefs.FileInfo {
	info := &panefs.FileInfo{
		Name:        path.Base(p),
		Path:        p,
		Size:        attrs.Size,
		ModTime:     attrs.Updated,
		ContentType: attrs.ContentType,
		Attrs:       panefs.AttrSize | panefs.AttrModTime | panefs.AttrSymlink,
	}
	if attrs.Updated.IsZero() {
		info.Attrs &^= panefs.AttrModTime
	}
	return info
}

func dirInfo(p string) *panefs.FileInfo {
	return &panefs.FileInfo{
		Name:  path.Base(p),
		Path:  p,
		IsDir: true,
		Attrs: panefs.AttrSymlink,
	}
}

// Stat implements panefs.FileReader.
func (a *Adapter) Stat(ctx context.Context, p string) (*panefs.FileInfo, error) {
	p = objstore.Clean(p)
	if p == "/" {
		return dirInfo(p), nil
	}

	attrs, err := a.object(a.keys.Key(p)).Attrs(ctx)
	if err == nil {
		return fileInfo(p, attrs), nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return nil, mapGCSError("stat", p, err)
	}

	keys, err := a.firstKeys(ctx, a.keys.DirKey(p), 1)
	if err != nil {
		return nil, mapGCSError("stat", p, err)
	}
	if len(keys) == 0 {
		return nil, &panefs.PathError{Op: "stat", Path: p, Err: panefs.ErrNotExist}
	}
	return dirInfo(p), nil
}

// firstKeys returns up to limit object names under prefix.
func (a *Adapter) firstKeys(ctx context.Context, prefix string, limit int) ([]string, error) {
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for len(keys) < limit {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// List implements panefs.FileReader.
func (a *Adapter) List(ctx context.Context, p string) ([]panefs.FileInfo, error) {
	p = objstore.Clean(p)
	prefix := a.keys.DirKey(p)

	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{
		Prefix:    prefix,
		Delimiter: "/",
	})

	var (
		entries []panefs.FileInfo
		found   bool
	)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapGCSError("list", p, err)
		}
		found = true

		// Handle "directory" prefixes
		if attrs.Prefix != "" {
			entries = append(entries, *dirInfo(a.keys.Path(attrs.Prefix)))
			continue
		}
		if attrs.Name == prefix {
			// Directory marker
			continue
		}
		entries = append(entries, *fileInfo(a.keys.Path(attrs.Name), attrs))
	}

	if !found && p != "/" {
		info, err := a.Stat(ctx, p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir {
			return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotDir}
		}
	}
	return entries, nil
}

// Open implements panefs.FileReader.
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	p = objstore.Clean(p)
	r, err := a.object(a.keys.Key(p)).NewReader(ctx)
	if err != nil {
		return nil, a.openError(ctx, "open", p, err)
	}
	return r, nil
}

func (a *Adapter) openError(ctx context.Context, op, p string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		if info, statErr := a.Stat(ctx, p); statErr == nil && info.IsDir {
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
		}
	}
	return mapGCSError(op, p, err)
}

// OpenRandom implements panefs.CanRandomRead with range readers.
func (a *Adapter) OpenRandom(ctx context.Context, p string) (panefs.RandomReader, error) {
	p = objstore.Clean(p)
	obj := a.object(a.keys.Key(p))

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, a.openError(ctx, "open", p, err)
	}

	// Pin the generation so that every range reads the same object.
	obj = obj.Generation(attrs.Generation)
	return ranged.New(ctx, attrs.Size, func(ctx context.Context, off, n int64) (io.ReadCloser, error) {
		r, err := obj.NewRangeReader(ctx, off, n)
		if err != nil {
			return nil, mapGCSError("read", p, err)
		}
		return r, nil
	}), nil
}

// Create implements panefs.FileWriter. The upload is committed when the
// writer is closed.
func (a *Adapter) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	p = objstore.Clean(p)
	if p == "/" {
		return nil, &panefs.PathError{Op: "create", Path: p, Err: panefs.ErrIsDir}
	}

	w := a.object(a.keys.Key(p)).NewWriter(ctx)
	w.ContentType = mime.TypeByExtension(path.Ext(p))
	return &objectWriter{Writer: w, path: p}, nil
}

type objectWriter struct {
	*storage.Writer
	path   string
	closed bool
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.Writer.Close(); err != nil {
		return mapGCSError("create", w.path, err)
	}
	return nil
}

// Mkdir implements panefs.FileWriter by writing a directory marker.
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	p = objstore.Clean(p)
	if p == "/" {
		return nil
	}
	w := a.object(a.keys.DirKey(p)).NewWriter(ctx)
	if err := w.Close(); err != nil {
		return mapGCSError("mkdir", p, err)
	}
	return nil
}

// Delete implements panefs.FileWriter.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	p = objstore.Clean(p)
	if p == "/" {
		return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotAllowed}
	}

	info, err := a.Stat(ctx, p)
	if err != nil {
		return err
	}

	key := a.keys.Key(p)
	if info.IsDir {
		marker := a.keys.DirKey(p)
		keys, err := a.firstKeys(ctx, marker, 2)
		if err != nil {
			return mapGCSError("delete", p, err)
		}
		for _, k := range keys {
			if k != marker {
				return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotEmpty}
			}
		}
		key = marker
	}

	if err := a.object(key).Delete(ctx); err != nil {
		return mapGCSError("delete", p, err)
	}
	return nil
}

// Rename implements panefs.FileWriter as copy plus delete, object by
// object for a directory.
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	src, dst = objstore.Clean(src), objstore.Clean(dst)

	info, err := a.Stat(ctx, src)
	if err != nil {
		return err
	}
	if _, err := a.Stat(ctx, dst); err == nil {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrExist}
	} else if !panefs.IsNotExist(err) {
		return err
	}

	if !info.IsDir {
		return a.move(ctx, a.keys.Key(src), a.keys.Key(dst), src)
	}
	if strings.HasPrefix(dst+"/", src+"/") {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrInvalidName}
	}

	srcPrefix, dstPrefix := a.keys.DirKey(src), a.keys.DirKey(dst)
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: srcPrefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return mapGCSError("rename", src, err)
		}
		names = append(names, attrs.Name)
	}
	for _, name := range names {
		if err := a.move(ctx, name, dstPrefix+strings.TrimPrefix(name, srcPrefix), src); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) move(ctx context.Context, srcKey, dstKey, p string) error {
	src := a.object(srcKey)
	if _, err := a.object(dstKey).CopierFrom(src).Run(ctx); err != nil {
		return mapGCSError("rename", p, err)
	}
	if err := src.Delete(ctx); err != nil {
		return mapGCSError("rename", p, err)
	}
	return nil
}

// Copy implements panefs.CanCopy using GCS's native CopierFrom.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	src, dst = objstore.Clean(src), objstore.Clean(dst)
	info, err := a.Stat(ctx, src)
	if err != nil {
		return err
	}
	if info.IsDir {
		return &panefs.PathError{Op: "copy", Path: src, Err: panefs.ErrIsDir}
	}

	srcObj := a.object(a.keys.Key(src))
	if _, err := a.object(a.keys.Key(dst)).CopierFrom(srcObj).Run(ctx); err != nil {
		return mapGCSError("copy", src, err)
	}
	return nil
}

// Watch implements panefs.CanWatch using a polling approach; GCS has no
// file system events.
func (a *Adapter) Watch(ctx context.Context, pattern string) (panefs.ChangeToken, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, &panefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	initial, err := a.matchingState(ctx, g)
	if err != nil {
		return nil, err
	}

	return panefs.NewPollingChangeToken(ctx, panefs.PollingConfig{
		Interval: a.pollInterval,
		CheckFunc: func() bool {
			current, err := a.matchingState(ctx, g)
			if err != nil {
				return false
			}
			return !initial.Equal(current)
		},
	}), nil
}

func (a *Adapter) matchingState(ctx context.Context, g glob.Glob) (objstore.Snapshot, error) {
	state := make(objstore.Snapshot)

	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: a.keys.Prefix()})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapGCSError("watch", "/", err)
		}
		rel := a.keys.Rel(attrs.Name)
		if g.Match(rel) {
			state[rel] = objstore.ObjectState{ModTime: attrs.Updated, Size: attrs.Size}
		}
	}
	return state, nil
}

// mapGCSError maps GCS errors to panefs errors
func mapGCSError(op, p string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotExist}
	}
	return &panefs.PathError{Op: op, Path: p, Err: err}
}
