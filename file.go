package panefs

import (
	"context"
	"io"
	"io/fs"
	"sync"
	"time"
	"weak"
)

// File is a handle to one file or directory on some backend. Every
// operation either does what it says or fails; operations the backend
// cannot perform fail with an *UnsupportedError naming the operation.
type File interface {
	Location() Location
	Name() string
	FileSystem() FileSystem

	// Stat returns metadata. The result is cached until Refresh or a
	// mutation through this handle.
	Stat(ctx context.Context) (*FileInfo, error)
	Refresh()

	Exists(ctx context.Context) (bool, error)
	IsDir(ctx context.Context) (bool, error)
	IsSymlink(ctx context.Context) (bool, error)
	Size(ctx context.Context) (int64, error)
	ModTime(ctx context.Context) (time.Time, error)
	Permissions(ctx context.Context) (fs.FileMode, error)
	Owner(ctx context.Context) (string, error)
	Group(ctx context.Context) (string, error)

	// List returns the children of a directory. A failure to list is an
	// error, never an empty result.
	List(ctx context.Context) ([]File, error)

	Open(ctx context.Context) (io.ReadCloser, error)
	Create(ctx context.Context) (io.WriteCloser, error)
	Append(ctx context.Context) (io.WriteCloser, error)
	OpenRandomRead(ctx context.Context) (RandomReader, error)
	OpenRandomWrite(ctx context.Context) (RandomWriter, error)

	Mkdir(ctx context.Context) error
	Delete(ctx context.Context) error
	Rename(ctx context.Context, target File) error

	// CopyRemote copies the file to target with a server-side copy. It
	// never streams content through the caller.
	CopyRemote(ctx context.Context, target File) error

	// Parent returns the containing directory, or nil for a realm root.
	Parent() File
}

// NewFile returns a File for loc served by fsys.
func NewFile(fsys FileSystem, loc Location) File {
	return newFile(fsys, loc, nil)
}

type file struct {
	fsys FileSystem
	loc  Location

	mu     sync.Mutex
	info   *FileInfo
	parent weak.Pointer[file]
}

var _ File = (*file)(nil)

func newFile(fsys FileSystem, loc Location, info *FileInfo) *file {
	return &file{fsys: fsys, loc: loc, info: info}
}

func (f *file) Location() Location     { return f.loc }
func (f *file) Name() string           { return f.loc.Base() }
func (f *file) FileSystem() FileSystem { return f.fsys }

func (f *file) String() string { return f.loc.Redacted() }

func (f *file) Stat(ctx context.Context) (*FileInfo, error) {
	f.mu.Lock()
	cached := f.info
	f.mu.Unlock()
	if cached != nil {
		info := *cached
		return &info, nil
	}

	info, err := f.fsys.Stat(ctx, f.loc.Path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.info = info
	f.mu.Unlock()

	out := *info
	return &out, nil
}

func (f *file) Refresh() {
	f.mu.Lock()
	f.info = nil
	f.mu.Unlock()
}

func (f *file) Exists(ctx context.Context) (bool, error) {
	_, err := f.Stat(ctx)
	if err != nil {
		if IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f *file) IsDir(ctx context.Context) (bool, error) {
	info, err := f.Stat(ctx)
	if err != nil {
		return false, err
	}
	return info.IsDir, nil
}

// attr returns the cached info after checking that the backend knows a.
func (f *file) attr(ctx context.Context, a Attr, op Operation) (*FileInfo, error) {
	info, err := f.Stat(ctx)
	if err != nil {
		return nil, err
	}
	if !info.Has(a) {
		return nil, Unsupported(f.fsys.Name(), op)
	}
	return info, nil
}

func (f *file) IsSymlink(ctx context.Context) (bool, error) {
	info, err := f.attr(ctx, AttrSymlink, OpSymlink)
	if err != nil {
		return false, err
	}
	return info.IsSymlink, nil
}

func (f *file) Size(ctx context.Context) (int64, error) {
	info, err := f.attr(ctx, AttrSize, OpSize)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (f *file) ModTime(ctx context.Context) (time.Time, error) {
	info, err := f.attr(ctx, AttrModTime, OpModTime)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime, nil
}

func (f *file) Permissions(ctx context.Context) (fs.FileMode, error) {
	info, err := f.attr(ctx, AttrMode, OpPermissions)
	if err != nil {
		return 0, err
	}
	return info.Mode.Perm(), nil
}

func (f *file) Owner(ctx context.Context) (string, error) {
	info, err := f.attr(ctx, AttrOwner, OpOwner)
	if err != nil {
		return "", err
	}
	return info.Owner, nil
}

func (f *file) Group(ctx context.Context) (string, error) {
	info, err := f.attr(ctx, AttrGroup, OpGroup)
	if err != nil {
		return "", err
	}
	return info.Group, nil
}

func (f *file) List(ctx context.Context) ([]File, error) {
	infos, err := f.fsys.List(ctx, f.loc.Path)
	if err != nil {
		return nil, err
	}

	children := make([]File, 0, len(infos))
	for i := range infos {
		info := infos[i]
		child := newFile(f.fsys, f.loc.Join(info.Name), &info)
		child.parent = weak.Make(f)
		children = append(children, child)
	}
	return children, nil
}

func (f *file) Open(ctx context.Context) (io.ReadCloser, error) {
	return f.fsys.Open(ctx, f.loc.Path)
}

func (f *file) Create(ctx context.Context) (io.WriteCloser, error) {
	f.Refresh()
	return f.fsys.Create(ctx, f.loc.Path)
}

func (f *file) Append(ctx context.Context) (io.WriteCloser, error) {
	a, ok := f.fsys.(CanAppend)
	if !ok {
		return nil, Unsupported(f.fsys.Name(), OpAppend)
	}
	f.Refresh()
	return a.Append(ctx, f.loc.Path)
}

func (f *file) OpenRandomRead(ctx context.Context) (RandomReader, error) {
	r, ok := f.fsys.(CanRandomRead)
	if !ok {
		return nil, Unsupported(f.fsys.Name(), OpRandomRead)
	}
	return r.OpenRandom(ctx, f.loc.Path)
}

func (f *file) OpenRandomWrite(ctx context.Context) (RandomWriter, error) {
	w, ok := f.fsys.(CanRandomWrite)
	if !ok {
		return nil, Unsupported(f.fsys.Name(), OpRandomWrite)
	}
	f.Refresh()
	return w.OpenRandomWrite(ctx, f.loc.Path)
}

func (f *file) Mkdir(ctx context.Context) error {
	f.Refresh()
	return f.fsys.Mkdir(ctx, f.loc.Path)
}

func (f *file) Delete(ctx context.Context) error {
	f.Refresh()
	return f.fsys.Delete(ctx, f.loc.Path)
}

func (f *file) Rename(ctx context.Context, target File) error {
	if !f.loc.SameRealm(target.Location()) {
		return &PathError{Op: "rename", Path: f.loc.Redacted(), Err: ErrCrossRealm}
	}
	f.Refresh()
	target.Refresh()
	return f.fsys.Rename(ctx, f.loc.Path, target.Location().Path)
}

func (f *file) CopyRemote(ctx context.Context, target File) error {
	c, ok := f.fsys.(CanCopy)
	if !ok {
		return Unsupported(f.fsys.Name(), OpCopyRemote)
	}
	if !f.loc.SameRealm(target.Location()) {
		return &PathError{Op: "copy", Path: f.loc.Redacted(), Err: ErrCrossRealm}
	}
	target.Refresh()
	return c.Copy(ctx, f.loc.Path, target.Location().Path)
}

// Parent resolves the parent from the location on first use. The parent is
// held through a weak pointer: a child never keeps its parent alive, and a
// collected parent is resolved again on the next call.
func (f *file) Parent() File {
	loc, ok := f.loc.Parent()
	if !ok {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p := f.parent.Value(); p != nil {
		return p
	}
	p := newFile(f.fsys, loc, nil)
	f.parent = weak.Make(p)
	return p
}
