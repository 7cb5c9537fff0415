// Package memory provides an in-memory panefs backend. Each realm
// (mem://<name>) is an independent tree; it is useful for tests and for
// scratch space.
package memory

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/gobeaver/panefs"
)

const backendName = "memory"

// memoryFile represents a file stored in memory. content is never modified
// in place; writers swap in a new slice on Close.
type memoryFile struct {
	content     []byte
	contentType string
	modTime     time.Time
	mode        fs.FileMode
}

// memoryDir represents a directory in memory
type memoryDir struct {
	modTime time.Time
	mode    fs.FileMode
}

// watchEntry represents a single watch subscription
type watchEntry struct {
	pattern glob.Glob
	token   *panefs.CallbackChangeToken
}

// Adapter provides an in-memory implementation of panefs.FileSystem
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]*memoryDir
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size

	// Watch support
	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory filesystem adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	a := &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    make(map[string]*memoryDir),
		maxSize: maxSize,
	}
	a.dirs["/"] = &memoryDir{modTime: time.Now(), mode: fs.ModeDir | 0o755}
	return a
}

// Name implements panefs.FileSystem
func (a *Adapter) Name() string { return backendName }

// Stat implements panefs.FileReader
func (a *Adapter) Stat(ctx context.Context, p string) (*panefs.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if info, ok := a.statLocked(p); ok {
		return info, nil
	}
	return nil, &panefs.PathError{Op: "stat", Path: p, Err: panefs.ErrNotExist}
}

func (a *Adapter) statLocked(p string) (*panefs.FileInfo, bool) {
	const known = panefs.AttrSize | panefs.AttrModTime | panefs.AttrMode | panefs.AttrSymlink

	if file, ok := a.files[p]; ok {
		return &panefs.FileInfo{
			Name:        path.Base(p),
			Path:        p,
			Size:        int64(len(file.content)),
			ModTime:     file.modTime,
			Mode:        file.mode,
			ContentType: file.contentType,
			Attrs:       known,
		}, true
	}
	if dir, ok := a.dirs[p]; ok {
		return &panefs.FileInfo{
			Name:    path.Base(p),
			Path:    p,
			ModTime: dir.modTime,
			IsDir:   true,
			Mode:    dir.mode,
			Attrs:   known,
		}, true
	}
	return nil, false
}

// List implements panefs.FileReader
func (a *Adapter) List(ctx context.Context, p string) ([]panefs.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, ok := a.dirs[p]; !ok {
		if _, isFile := a.files[p]; isFile {
			return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotDir}
		}
		return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotExist}
	}

	var entries []panefs.FileInfo
	for _, child := range a.childrenLocked(p) {
		info, _ := a.statLocked(child)
		entries = append(entries, *info)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// childrenLocked returns the paths of the immediate children of dir.
func (a *Adapter) childrenLocked(dir string) []string {
	var children []string
	for filePath := range a.files {
		if filePath != dir && path.Dir(filePath) == dir {
			children = append(children, filePath)
		}
	}
	for dirPath := range a.dirs {
		if dirPath != dir && path.Dir(dirPath) == dir {
			children = append(children, dirPath)
		}
	}
	return children
}

// Open implements panefs.FileReader
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	r, err := a.reader(ctx, "open", p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(r), nil
}

// OpenRandom implements panefs.CanRandomRead
func (a *Adapter) OpenRandom(ctx context.Context, p string) (panefs.RandomReader, error) {
	r, err := a.reader(ctx, "openrandom", p)
	if err != nil {
		return nil, err
	}
	return &randomReader{Reader: r}, nil
}

func (a *Adapter) reader(ctx context.Context, op, p string) (*bytes.Reader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, ok := a.files[p]
	if !ok {
		if _, isDir := a.dirs[p]; isDir {
			return nil, &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
		}
		return nil, &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotExist}
	}
	return bytes.NewReader(file.content), nil
}

// Create implements panefs.FileWriter. The file appears once the writer is
// closed.
func (a *Adapter) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return a.writer(ctx, "create", p, false)
}

// Append implements panefs.CanAppend
func (a *Adapter) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	return a.writer(ctx, "append", p, true)
}

func (a *Adapter) writer(ctx context.Context, op, p string, appendMode bool) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)
	if !isValidPath(p) {
		return nil, &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotAllowed}
	}

	a.mu.RLock()
	_, isDir := a.dirs[p]
	a.mu.RUnlock()
	if isDir {
		return nil, &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
	}

	return &memoryWriter{
		commit: func(data []byte) error {
			return a.store(op, p, data, appendMode)
		},
	}, nil
}

// store replaces (or extends) the content at p and notifies watchers.
func (a *Adapter) store(op, p string, data []byte, appendMode bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[p]; isDir {
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
	}

	mode := fs.FileMode(0o644)
	var old []byte
	if existing, ok := a.files[p]; ok {
		old = existing.content
		mode = existing.mode
	}

	content := data
	if appendMode && len(old) > 0 {
		content = append(old[:len(old):len(old)], data...)
	}

	newSize := a.size - int64(len(old)) + int64(len(content))
	if a.maxSize > 0 && newSize > a.maxSize {
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNoSpace}
	}

	a.ensureParentDirs(p)
	a.files[p] = &memoryFile{
		content:     content,
		contentType: detectContentType(p, content),
		modTime:     time.Now(),
		mode:        mode,
	}
	a.size = newSize

	go a.notifyWatchers(p)
	return nil
}

// OpenRandomWrite implements panefs.CanRandomWrite. Writes go to a private
// copy that replaces the stored content on Close.
func (a *Adapter) OpenRandomWrite(ctx context.Context, p string) (panefs.RandomWriter, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)
	if !isValidPath(p) {
		return nil, &panefs.PathError{Op: "openrandomwrite", Path: p, Err: panefs.ErrNotAllowed}
	}

	a.mu.RLock()
	var buf []byte
	if existing, ok := a.files[p]; ok {
		buf = bytes.Clone(existing.content)
	}
	_, isDir := a.dirs[p]
	a.mu.RUnlock()
	if isDir {
		return nil, &panefs.PathError{Op: "openrandomwrite", Path: p, Err: panefs.ErrIsDir}
	}

	return &randomWriter{
		buf: buf,
		commit: func(data []byte) error {
			return a.store("openrandomwrite", p, data, false)
		},
	}, nil
}

// Mkdir implements panefs.FileWriter
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)
	if !isValidPath(p) {
		return &panefs.PathError{Op: "mkdir", Path: p, Err: panefs.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.files[p]; exists {
		return &panefs.PathError{Op: "mkdir", Path: p, Err: panefs.ErrExist}
	}
	a.ensureParentDirs(p)
	if _, exists := a.dirs[p]; !exists {
		a.dirs[p] = &memoryDir{modTime: time.Now(), mode: fs.ModeDir | 0o755}
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

	p = normalizePath(p)

	a.mu.Lock()
	defer a.mu.Unlock()

	if file, ok := a.files[p]; ok {
		a.size -= int64(len(file.content))
		delete(a.files, p)
		go a.notifyWatchers(p)
		return nil
	}

	if _, ok := a.dirs[p]; !ok {
		return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotExist}
	}
	if p == "/" {
		return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotAllowed}
	}
	if len(a.childrenLocked(p)) > 0 {
		return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotEmpty}
	}
	delete(a.dirs, p)
	return nil
}

// Rename implements panefs.FileWriter. Directories are moved with their
// whole subtree.
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src = normalizePath(src)
	dst = normalizePath(dst)
	if !isValidPath(src) || !isValidPath(dst) || src == "/" {
		return &panefs.PathError{Op: "rename", Path: src, Err: panefs.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.statLocked(dst); ok {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrExist}
	}

	if file, ok := a.files[src]; ok {
		a.ensureParentDirs(dst)
		a.files[dst] = file
		delete(a.files, src)
		go func() {
			a.notifyWatchers(src)
			a.notifyWatchers(dst)
		}()
		return nil
	}

	dir, ok := a.dirs[src]
	if !ok {
		return &panefs.PathError{Op: "rename", Path: src, Err: panefs.ErrNotExist}
	}
	if strings.HasPrefix(dst, src+"/") {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrNotAllowed}
	}

	a.ensureParentDirs(dst)
	prefix := src + "/"
	var moved []string
	for filePath, file := range a.files {
		if strings.HasPrefix(filePath, prefix) {
			delete(a.files, filePath)
			a.files[dst+"/"+strings.TrimPrefix(filePath, prefix)] = file
			moved = append(moved, filePath)
		}
	}
	for dirPath, d := range a.dirs {
		if strings.HasPrefix(dirPath, prefix) {
			delete(a.dirs, dirPath)
			a.dirs[dst+"/"+strings.TrimPrefix(dirPath, prefix)] = d
		}
	}
	delete(a.dirs, src)
	a.dirs[dst] = dir

	if len(moved) > 0 {
		go func() {
			for _, p := range moved {
				a.notifyWatchers(p)
			}
		}()
	}
	return nil
}

// Clear removes all files and directories from the memory filesystem
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.dirs = map[string]*memoryDir{"/": {modTime: time.Now(), mode: fs.ModeDir | 0o755}}
	a.size = 0
}

// Size returns the current total size of all stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// ensureParentDirs creates all parent directories for a given path
// Must be called with lock held
func (a *Adapter) ensureParentDirs(p string) {
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, exists := a.dirs[dir]; !exists {
			a.dirs[dir] = &memoryDir{modTime: time.Now(), mode: fs.ModeDir | 0o755}
		}
	}
}

// normalizePath returns the cleaned, "/"-rooted form of p.
func normalizePath(p string) string {
	return path.Clean("/" + p)
}

// isValidPath rejects paths that still climb after cleaning.
func isValidPath(p string) bool {
	return !strings.Contains(p, "..")
}

func detectContentType(p string, data []byte) string {
	if ext := path.Ext(p); ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "application/octet-stream"
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements panefs.CanCopy for in-memory file copying.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src = normalizePath(src)
	dst = normalizePath(dst)

	if !isValidPath(src) || !isValidPath(dst) {
		return &panefs.PathError{Op: "copy", Path: src, Err: panefs.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	srcFile, exists := a.files[src]
	if !exists {
		if _, isDir := a.dirs[src]; isDir {
			return &panefs.PathError{Op: "copy", Path: src, Err: panefs.ErrIsDir}
		}
		return &panefs.PathError{Op: "copy", Path: src, Err: panefs.ErrNotExist}
	}
	if _, isDir := a.dirs[dst]; isDir {
		return &panefs.PathError{Op: "copy", Path: dst, Err: panefs.ErrIsDir}
	}

	var old int64
	if existing, ok := a.files[dst]; ok {
		old = int64(len(existing.content))
	}
	if a.maxSize > 0 && a.size-old+int64(len(srcFile.content)) > a.maxSize {
		return &panefs.PathError{Op: "copy", Path: dst, Err: panefs.ErrNoSpace}
	}

	a.ensureParentDirs(dst)

	// Content slices are immutable, so the copy can share them.
	a.files[dst] = &memoryFile{
		content:     srcFile.content,
		contentType: srcFile.contentType,
		modTime:     time.Now(),
		mode:        srcFile.mode,
	}
	a.size += int64(len(srcFile.content)) - old

	go a.notifyWatchers(dst)

	return nil
}

// Checksum implements panefs.CanChecksum for in-memory files.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm panefs.ChecksumAlgorithm) (string, error) {
	r, err := a.reader(ctx, "checksum", p)
	if err != nil {
		return "", err
	}

	checksum, err := panefs.CalculateChecksum(r, algorithm)
	if err != nil {
		return "", &panefs.PathError{Op: "checksum", Path: p, Err: err}
	}
	return checksum, nil
}

// ============================================================================
// Watcher Implementation
// ============================================================================

// Watch implements panefs.CanWatch for in-memory file change detection.
// Patterns are matched against paths without the leading slash, for example
// "**/*.txt", "*.json" or "config/*".
func (a *Adapter) Watch(ctx context.Context, pattern string) (panefs.ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, &panefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	token := panefs.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{pattern: g, token: token})
	a.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		a.removeWatch(token)
	}()

	return token, nil
}

// notifyWatchers signals all watchers whose pattern matches the given path
func (a *Adapter) notifyWatchers(p string) {
	rel := strings.TrimPrefix(p, "/")

	a.watchMu.RLock()
	defer a.watchMu.RUnlock()

	for _, entry := range a.watches {
		if entry.pattern.Match(rel) {
			entry.token.SignalChange()
		}
	}
}

// removeWatch removes a watch entry by token
func (a *Adapter) removeWatch(token *panefs.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
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
