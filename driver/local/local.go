// Package local serves file: locations from the operating system's file
// system, confined to a root directory.
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/gobeaver/panefs"
)

const backendName = "local"

// Adapter provides a local filesystem implementation of panefs.FileSystem
type Adapter struct {
	root   string
	logger *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for watcher errors.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates a new local filesystem adapter rooted at root. Location paths
// are resolved relative to it.
func New(root string, opts ...Option) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Ensure the root directory exists
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	a := &Adapter{
		root:   absRoot,
		logger: panefs.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name implements panefs.FileSystem
func (a *Adapter) Name() string { return backendName }

// Root returns the absolute directory the adapter is confined to.
func (a *Adapter) Root() string { return a.root }

// resolve maps a location path to an OS path under the root.
func (a *Adapter) resolve(op, p string) (string, error) {
	full := filepath.Join(a.root, filepath.FromSlash(path.Clean("/"+p)))
	if !isPathUnderRoot(a.root, full) {
		return "", &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotAllowed}
	}
	return full, nil
}

// Stat implements panefs.FileReader. Symbolic links are reported as links
// with the metadata of their target when it exists.
func (a *Adapter) Stat(ctx context.Context, p string) (*panefs.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, err := a.resolve("stat", p)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(full)
	if err != nil {
		return nil, mapError("stat", p, err)
	}
	return a.fileInfo(p, full, info), nil
}

func (a *Adapter) fileInfo(p, full string, info fs.FileInfo) *panefs.FileInfo {
	p = path.Clean("/" + p)
	isLink := info.Mode()&fs.ModeSymlink != 0
	if isLink {
		if target, err := os.Stat(full); err == nil {
			info = target
		}
	}

	fi := &panefs.FileInfo{
		Name:      path.Base(p),
		Path:      p,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		IsDir:     info.IsDir(),
		IsSymlink: isLink,
		Mode:      info.Mode(),
		Attrs:     panefs.AttrSize | panefs.AttrModTime | panefs.AttrMode | panefs.AttrSymlink,
	}
	if fi.IsDir {
		fi.Size = 0
	} else {
		fi.ContentType = getContentType(full)
	}
	if owner, group, ok := ownership(info); ok {
		fi.Owner, fi.Group = owner, group
		fi.Attrs |= panefs.AttrOwner | panefs.AttrGroup
	}
	return fi
}

// List implements panefs.FileReader
func (a *Adapter) List(ctx context.Context, p string) ([]panefs.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, err := a.resolve("list", p)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && errors.Is(pathErr.Err, syscall.ENOTDIR) {
			return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotDir}
		}
		return nil, mapError("list", p, err)
	}

	files := make([]panefs.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, mapError("list", p, err)
		}
		childPath := path.Join("/", p, entry.Name())
		files = append(files, *a.fileInfo(childPath, filepath.Join(full, entry.Name()), info))
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// Open implements panefs.FileReader
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return a.OpenRandom(ctx, p)
}

// OpenRandom implements panefs.CanRandomRead
func (a *Adapter) OpenRandom(ctx context.Context, p string) (panefs.RandomReader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, err := a.resolve("open", p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, mapError("open", p, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapError("open", p, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, &panefs.PathError{Op: "open", Path: p, Err: panefs.ErrIsDir}
	}
	return &randomFile{File: f, size: info.Size()}, nil
}

// randomFile adds the size captured at open time to *os.File.
type randomFile struct {
	*os.File
	size int64
}

func (f *randomFile) Size() int64 { return f.size }

// Create implements panefs.FileWriter. Content is written to a temporary
// file in the same directory and renamed into place on Close, so readers
// never observe a partial file.
func (a *Adapter) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, err := a.resolve("create", p)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return nil, &panefs.PathError{Op: "create", Path: p, Err: panefs.ErrIsDir}
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, mapError("create", p, err)
	}

	tmpPath := filepath.Join(dir, ".panefs-"+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, mapError("create", p, err)
	}
	return &atomicWriter{File: f, target: full, path: p}, nil
}

// atomicWriter renames its temporary file over the target on Close.
type atomicWriter struct {
	*os.File
	target string
	path   string
	done   bool
}

func (w *atomicWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	tmp := w.File.Name()
	if err := w.File.Close(); err != nil {
		os.Remove(tmp)
		return mapError("create", w.path, err)
	}
	if err := os.Rename(tmp, w.target); err != nil {
		os.Remove(tmp)
		return mapError("create", w.path, err)
	}
	return nil
}

// Append implements panefs.CanAppend
func (a *Adapter) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, err := a.resolve("append", p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, mapError("append", p, err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, mapError("append", p, err)
	}
	return f, nil
}

// OpenRandomWrite implements panefs.CanRandomWrite
func (a *Adapter) OpenRandomWrite(ctx context.Context, p string) (panefs.RandomWriter, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, err := a.resolve("openrandomwrite", p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, mapError("openrandomwrite", p, err)
	}

	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, mapError("openrandomwrite", p, err)
	}
	return f, nil
}

// Mkdir implements panefs.FileWriter
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	full, err := a.resolve("mkdir", p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		if errors.Is(err, syscall.ENOTDIR) {
			return &panefs.PathError{Op: "mkdir", Path: p, Err: panefs.ErrExist}
		}
		return mapError("mkdir", p, err)
	}
	return nil
}

// Delete implements panefs.FileWriter. Directories must be empty.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	full, err := a.resolve("delete", p)
	if err != nil {
		return err
	}
	if full == a.root {
		return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotAllowed}
	}
	if err := os.Remove(full); err != nil {
		return mapError("delete", p, err)
	}
	return nil
}

// Rename implements panefs.FileWriter
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	srcPath, err := a.resolve("rename", src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolve("rename", dst)
	if err != nil {
		return err
	}

	if _, err := os.Lstat(srcPath); err != nil {
		return mapError("rename", src, err)
	}
	if _, err := os.Lstat(dstPath); err == nil {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrExist}
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return mapError("rename", dst, err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return mapError("rename", src, err)
	}
	return nil
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// getContentType determines the content type from the extension, falling
// back to sniffing the first 512 bytes.
func getContentType(full string) string {
	if ext := filepath.Ext(full); ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}

	file, err := os.Open(full)
	if err != nil {
		return ""
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return http.DetectContentType(buffer[:n])
}

// mapError converts OS errors into panefs sentinels, keeping the cause.
func mapError(op, p string, err error) error {
	// ENOTEMPTY also matches fs.ErrExist, so it is checked first.
	switch {
	case errors.Is(err, syscall.ENOTEMPTY):
		err = panefs.ErrNotEmpty
	case errors.Is(err, fs.ErrNotExist):
		err = panefs.ErrNotExist
	case errors.Is(err, fs.ErrExist):
		err = panefs.ErrExist
	case errors.Is(err, fs.ErrPermission):
		err = panefs.ErrPermission
	case errors.Is(err, syscall.EISDIR):
		err = panefs.ErrIsDir
	}
	return &panefs.PathError{Op: op, Path: p, Err: err}
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements panefs.CanCopy for native file copying.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	srcPath, err := a.resolve("copy", src)
	if err != nil {
		return err
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		return mapError("copy", src, err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return mapError("copy", src, err)
	}
	if srcInfo.IsDir() {
		return &panefs.PathError{Op: "copy", Path: src, Err: panefs.ErrIsDir}
	}

	w, err := a.Create(ctx, dst)
	if err != nil {
		return err
	}
	aw := w.(*atomicWriter)
	if _, err := io.Copy(aw, srcFile); err != nil {
		aw.File.Close()
		os.Remove(aw.File.Name())
		return &panefs.PathError{Op: "copy", Path: dst, Err: err}
	}
	// Carry the permission bits over before the rename publishes the file.
	if err := aw.File.Chmod(srcInfo.Mode().Perm()); err != nil {
		a.logger.Debug("copy: chmod failed", "path", dst, "error", err)
	}
	return aw.Close()
}

// Checksum implements panefs.CanChecksum for local files.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm panefs.ChecksumAlgorithm) (string, error) {
	rc, err := a.Open(ctx, p)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	checksum, err := panefs.CalculateChecksum(rc, algorithm)
	if err != nil {
		return "", &panefs.PathError{Op: "checksum", Path: p, Err: err}
	}
	return checksum, nil
}

// Ensure Adapter implements interfaces
var (
	_ panefs.FileSystem     = (*Adapter)(nil)
	_ panefs.CanAppend      = (*Adapter)(nil)
	_ panefs.CanRandomRead  = (*Adapter)(nil)
	_ panefs.CanRandomWrite = (*Adapter)(nil)
	_ panefs.CanCopy        = (*Adapter)(nil)
	_ panefs.CanChecksum    = (*Adapter)(nil)
	_ panefs.CanWatch       = (*Adapter)(nil)
)
