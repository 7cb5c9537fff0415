package panefs

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

var mockTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// mockFS is a map-backed FileSystem with no optional capabilities.
type mockFS struct {
	mu     sync.Mutex
	name   string
	attrs  Attr
	files  map[string][]byte
	dirs   map[string]bool
	stats  int
	closed bool
}

func newMockFS(name string) *mockFS {
	return &mockFS{
		name:  name,
		attrs: AttrSize | AttrModTime,
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

// put stores a file, creating its parents.
func (m *mockFS) put(p, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(cleanPath(p), []byte(content))
}

func (m *mockFS) putLocked(p string, data []byte) {
	for dir := path.Dir(p); !m.dirs[dir]; dir = path.Dir(dir) {
		m.dirs[dir] = true
	}
	m.files[p] = data
}

func (m *mockFS) content(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[cleanPath(p)]
	return string(data), ok
}

func (m *mockFS) statCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *mockFS) Name() string { return m.name }

func (m *mockFS) Stat(ctx context.Context, p string) (*FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats++
	p = cleanPath(p)
	info, ok := m.infoLocked(p)
	if !ok {
		return nil, &PathError{Op: "stat", Path: p, Err: ErrNotExist}
	}
	return info, nil
}

func (m *mockFS) infoLocked(p string) (*FileInfo, bool) {
	if data, ok := m.files[p]; ok {
		return &FileInfo{Name: path.Base(p), Path: p, Size: int64(len(data)), ModTime: mockTime, Attrs: m.attrs}, true
	}
	if m.dirs[p] {
		return &FileInfo{Name: path.Base(p), Path: p, IsDir: true, ModTime: mockTime, Attrs: m.attrs}, true
	}
	return nil, false
}

func (m *mockFS) List(ctx context.Context, p string) ([]FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = cleanPath(p)
	if !m.dirs[p] {
		if _, ok := m.files[p]; ok {
			return nil, &PathError{Op: "list", Path: p, Err: ErrNotDir}
		}
		return nil, &PathError{Op: "list", Path: p, Err: ErrNotExist}
	}

	var entries []FileInfo
	for _, name := range m.childrenLocked(p) {
		info, _ := m.infoLocked(name)
		entries = append(entries, *info)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *mockFS) childrenLocked(dir string) []string {
	var names []string
	for p := range m.files {
		if path.Dir(p) == dir {
			names = append(names, p)
		}
	}
	for p := range m.dirs {
		if p != "/" && path.Dir(p) == dir {
			names = append(names, p)
		}
	}
	return names
}

func (m *mockFS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = cleanPath(p)
	if m.dirs[p] {
		return nil, &PathError{Op: "open", Path: p, Err: ErrIsDir}
	}
	data, ok := m.files[p]
	if !ok {
		return nil, &PathError{Op: "open", Path: p, Err: ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type mockWriter struct {
	bytes.Buffer
	commit func([]byte)
}

func (w *mockWriter) Close() error {
	w.commit(w.Bytes())
	return nil
}

func (m *mockFS) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	p = cleanPath(p)
	return &mockWriter{commit: func(data []byte) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.putLocked(p, data)
	}}, nil
}

func (m *mockFS) Mkdir(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = cleanPath(p)
	if _, ok := m.infoLocked(p); ok {
		return &PathError{Op: "mkdir", Path: p, Err: ErrExist}
	}
	if !m.dirs[path.Dir(p)] {
		return &PathError{Op: "mkdir", Path: p, Err: ErrNotExist}
	}
	m.dirs[p] = true
	return nil
}

func (m *mockFS) Delete(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = cleanPath(p)
	if _, ok := m.files[p]; ok {
		delete(m.files, p)
		return nil
	}
	if !m.dirs[p] || p == "/" {
		return &PathError{Op: "delete", Path: p, Err: ErrNotExist}
	}
	if len(m.childrenLocked(p)) > 0 {
		return &PathError{Op: "delete", Path: p, Err: ErrNotEmpty}
	}
	delete(m.dirs, p)
	return nil
}

func (m *mockFS) Rename(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, dst = cleanPath(src), cleanPath(dst)
	if _, ok := m.infoLocked(src); !ok {
		return &PathError{Op: "rename", Path: src, Err: ErrNotExist}
	}

	moved := make(map[string][]byte)
	for p, data := range m.files {
		if p == src || strings.HasPrefix(p, src+"/") {
			moved[dst+strings.TrimPrefix(p, src)] = data
			delete(m.files, p)
		}
	}
	var movedDirs []string
	for p := range m.dirs {
		if p == src || strings.HasPrefix(p, src+"/") {
			delete(m.dirs, p)
			movedDirs = append(movedDirs, dst+strings.TrimPrefix(p, src))
		}
	}
	for _, p := range movedDirs {
		m.dirs[p] = true
	}
	for p, data := range moved {
		m.putLocked(p, data)
	}
	return nil
}

func (m *mockFS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ FileSystem = (*mockFS)(nil)

// mockFile returns a File on fsys for a mock://<host> location.
func mockFile(fsys FileSystem, host, p string) File {
	return NewFile(fsys, Location{Scheme: "mock", Host: host, Path: cleanPath(p)})
}
