// Package archivefs presents the entries of a container file (zip, tar, rar,
// 7z or an lst listing) as a read-only panefs.FileSystem.
//
// The entry index is read once, on first use. Opening an entry reads the
// container again up to that entry; nothing is extracted to disk except
// when the container backend cannot seek and the format keeps its
// directory at the end.
package archivefs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/archive"
)

// Adapter provides a read-only archive implementation of panefs.FileSystem.
type Adapter struct {
	container panefs.File
	opts      []archive.OpenOption

	mu     sync.Mutex
	files  map[string]*panefs.FileInfo
	format archive.Format
}

// New returns a view of the entries of container.
func New(container panefs.File, opts ...archive.OpenOption) *Adapter {
	return &Adapter{container: container, opts: opts}
}

// Name implements panefs.FileSystem.
func (a *Adapter) Name() string { return "archive" }

// Format returns the detected container format, FormatUnknown before the
// index was read.
func (a *Adapter) Format() archive.Format {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.format
}

// index builds the path index on first use. A failed read is not cached.
func (a *Adapter) index(ctx context.Context) (map[string]*panefs.FileInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.files != nil {
		return a.files, nil
	}

	r, err := archive.Open(ctx, a.container, a.opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	files := map[string]*panefs.FileInfo{"/": {Name: "/", Path: "/", IsDir: true, Attrs: panefs.AttrSize | panefs.AttrSymlink}}
	for {
		e, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		p := normalizePath(e.Path)
		if p == "/" {
			continue
		}
		files[p] = entryInfo(p, e)
		ensureParentDirs(files, p)
	}

	a.files = files
	a.format = r.Format()
	return files, nil
}

func entryInfo(p string, e archive.Entry) *panefs.FileInfo {
	info := &panefs.FileInfo{
		Name:    path.Base(p),
		Path:    p,
		IsDir:   e.IsDir,
		ModTime: e.ModTime,
		Attrs:   panefs.AttrSize | panefs.AttrSymlink,
	}
	if !e.ModTime.IsZero() {
		info.Attrs |= panefs.AttrModTime
	}
	if !e.IsDir {
		info.Size = e.Size
		info.ContentType = mime.TypeByExtension(path.Ext(p))
	}
	if e.HasAttrs {
		info.Mode = e.Mode.Perm()
		info.Attrs |= panefs.AttrMode
		if e.Owner != "" {
			info.Owner = e.Owner
			info.Attrs |= panefs.AttrOwner
		}
		if e.Group != "" {
			info.Group = e.Group
			info.Attrs |= panefs.AttrGroup
		}
	}
	return info
}

// ensureParentDirs adds the directories that containers imply without
// storing an entry for them.
func ensureParentDirs(files map[string]*panefs.FileInfo, p string) {
	for dir := path.Dir(p); dir != "/"; dir = path.Dir(dir) {
		if _, ok := files[dir]; ok {
			continue
		}
		files[dir] = &panefs.FileInfo{Name: path.Base(dir), Path: dir, IsDir: true, Attrs: panefs.AttrSize | panefs.AttrSymlink}
	}
}

func normalizePath(p string) string {
	return path.Clean("/" + strings.TrimSuffix(p, "/"))
}

// Stat implements panefs.FileReader.
func (a *Adapter) Stat(ctx context.Context, p string) (*panefs.FileInfo, error) {
	p = normalizePath(p)
	files, err := a.index(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "stat", Path: p, Err: err}
	}
	info, ok := files[p]
	if !ok {
		return nil, &panefs.PathError{Op: "stat", Path: p, Err: panefs.ErrNotExist}
	}
	copied := *info
	return &copied, nil
}

// List implements panefs.FileReader. Entries are sorted by name.
func (a *Adapter) List(ctx context.Context, p string) ([]panefs.FileInfo, error) {
	p = normalizePath(p)
	files, err := a.index(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "list", Path: p, Err: err}
	}
	dir, ok := files[p]
	if !ok {
		return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotExist}
	}
	if !dir.IsDir {
		return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotDir}
	}

	var entries []panefs.FileInfo
	for name, info := range files {
		if name != "/" && path.Dir(name) == p {
			entries = append(entries, *info)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// entryReader reads one entry and closes the container stream with it.
type entryReader struct {
	io.Reader
	stream *archive.Reader
}

func (r *entryReader) Close() error { return r.stream.Close() }

// Open implements panefs.FileReader. Listings (lst) carry no content and
// report Unsupported.
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	info, err := a.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if info.IsDir {
		return nil, &panefs.PathError{Op: "open", Path: info.Path, Err: panefs.ErrIsDir}
	}

	r, err := archive.Open(ctx, a.container, a.opts...)
	if err != nil {
		return nil, &panefs.PathError{Op: "open", Path: info.Path, Err: err}
	}
	for {
		e, ok, err := r.Next()
		if err != nil {
			r.Close()
			return nil, &panefs.PathError{Op: "open", Path: info.Path, Err: err}
		}
		if !ok {
			r.Close()
			// The container changed since it was indexed.
			return nil, &panefs.PathError{Op: "open", Path: info.Path, Err: panefs.ErrInternalInconsistency}
		}
		if e.IsDir || normalizePath(e.Path) != info.Path {
			continue
		}
		content, err := r.Content()
		if err != nil {
			r.Close()
			return nil, &panefs.PathError{Op: "open", Path: info.Path, Err: err}
		}
		return &entryReader{Reader: content, stream: r}, nil
	}
}

func (a *Adapter) readOnly(op panefs.Operation, p string) error {
	return &panefs.PathError{
		Op:   string(op),
		Path: normalizePath(p),
		Err:  fmt.Errorf("%w: %w", panefs.ErrReadOnly, panefs.Unsupported(a.Name(), op)),
	}
}

// Create implements panefs.FileWriter; archives are read-only.
func (a *Adapter) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return nil, a.readOnly(panefs.OpWrite, p)
}

// Mkdir implements panefs.FileWriter; archives are read-only.
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	return a.readOnly(panefs.OpMkdir, p)
}

// Delete implements panefs.FileWriter; archives are read-only.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	return a.readOnly(panefs.OpDelete, p)
}

// Rename implements panefs.FileWriter; archives are read-only.
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	return a.readOnly(panefs.OpRename, dst)
}

var _ panefs.FileSystem = (*Adapter)(nil)
