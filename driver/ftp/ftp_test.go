package ftp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/gobeaver/panefs"
)

type fakeNode struct {
	dir  bool
	data []byte
	mod  time.Time
}

// fakeConn is an in-memory server without MLST, so stat goes through LIST.
type fakeConn struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode
}

func newFakeConn() *fakeConn {
	return &fakeConn{nodes: map[string]*fakeNode{"/": {dir: true}}}
}

func unavailable() error {
	return &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No such file or directory"}
}

func (c *fakeConn) List(p string) ([]*ftp.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok || !n.dir {
		return nil, unavailable()
	}
	var entries []*ftp.Entry
	for name, child := range c.nodes {
		if name == "/" || path.Dir(name) != p {
			continue
		}
		e := &ftp.Entry{Name: path.Base(name), Time: child.mod, Type: ftp.EntryTypeFile, Size: uint64(len(child.data))}
		if child.dir {
			e.Type, e.Size = ftp.EntryTypeFolder, 0
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (c *fakeConn) GetEntry(string) (*ftp.Entry, error) {
	return nil, &textproto.Error{Code: ftp.StatusNotImplemented, Msg: "MLST not supported"}
}

func (c *fakeConn) Retr(p string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok || n.dir {
		return nil, unavailable()
	}
	return io.NopCloser(bytes.NewReader(n.data)), nil
}

func (c *fakeConn) put(p string, r io.Reader, appendData bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if parent, ok := c.nodes[path.Dir(p)]; !ok || !parent.dir {
		return unavailable()
	}
	if n, ok := c.nodes[p]; ok && appendData {
		data = append(n.data, data...)
	}
	c.nodes[p] = &fakeNode{data: data, mod: time.Now()}
	return nil
}

func (c *fakeConn) Stor(p string, r io.Reader) error   { return c.put(p, r, false) }
func (c *fakeConn) Append(p string, r io.Reader) error { return c.put(p, r, true) }

func (c *fakeConn) MakeDir(p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[p]; ok {
		return unavailable()
	}
	if parent, ok := c.nodes[path.Dir(p)]; !ok || !parent.dir {
		return unavailable()
	}
	c.nodes[p] = &fakeNode{dir: true, mod: time.Now()}
	return nil
}

func (c *fakeConn) Delete(p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[p]; !ok || n.dir {
		return unavailable()
	}
	delete(c.nodes, p)
	return nil
}

func (c *fakeConn) RemoveDir(p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[p]; !ok || !n.dir {
		return unavailable()
	}
	for name := range c.nodes {
		if name != p && strings.HasPrefix(name, p+"/") {
			return unavailable()
		}
	}
	delete(c.nodes, p)
	return nil
}

func (c *fakeConn) Rename(from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[from]; !ok {
		return unavailable()
	}
	moved := make(map[string]*fakeNode)
	for name, n := range c.nodes {
		if name == from || strings.HasPrefix(name, from+"/") {
			delete(c.nodes, name)
			moved[to+strings.TrimPrefix(name, from)] = n
		}
	}
	for name, n := range moved {
		c.nodes[name] = n
	}
	return nil
}

func (c *fakeConn) Quit() error { return nil }

func newTestAdapter(t *testing.T, opts ...AdapterOption) (*Adapter, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	a := newFromConn(conn, opts)
	t.Cleanup(func() { a.Close() })
	return a, conn
}

func writeFile(t *testing.T, a *Adapter, p, content string) {
	t.Helper()
	w, err := a.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", p, err)
	}
}

func readFile(t *testing.T, a *Adapter, p string) string {
	t.Helper()
	rc, err := a.Open(context.Background(), p)
	if err != nil {
		t.Fatalf("open %s: %v", p, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(data)
}

func TestCreateAndStat(t *testing.T) {
	ctx := context.Background()
	a, conn := newTestAdapter(t)
	writeFile(t, a, "/docs/readme.txt", "hello")

	if _, ok := conn.nodes["/docs"]; !ok {
		t.Fatal("expected parent directory to be created")
	}
	if got := readFile(t, a, "/docs/readme.txt"); got != "hello" {
		t.Errorf("unexpected content %q", got)
	}

	info, err := a.Stat(ctx, "/docs/readme.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Size != 5 || info.IsDir || info.Name != "readme.txt" {
		t.Errorf("unexpected info %+v", info)
	}
	if !info.Has(panefs.AttrSize|panefs.AttrModTime) || info.Has(panefs.AttrMode) || info.Has(panefs.AttrOwner) {
		t.Errorf("unexpected attrs %b", info.Attrs)
	}
	if !strings.HasPrefix(info.ContentType, "text/plain") {
		t.Errorf("unexpected content type %q", info.ContentType)
	}

	if _, err := a.Stat(ctx, "/nope"); !panefs.IsNotExist(err) {
		t.Errorf("expected not exist, got %v", err)
	}
	if _, err := a.Open(ctx, "/docs"); !errors.Is(err, panefs.ErrIsDir) {
		t.Errorf("expected ErrIsDir, got %v", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)
	writeFile(t, a, "/b.txt", "b")
	writeFile(t, a, "/a.txt", "a")
	if err := a.Mkdir(ctx, "/sub/deeper"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := a.List(ctx, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if strings.Join(names, ",") != "a.txt,b.txt,sub" {
		t.Errorf("unexpected listing %v", names)
	}
	if !entries[2].IsDir || entries[2].Path != "/sub" {
		t.Errorf("unexpected dir entry %+v", entries[2])
	}

	if _, err := a.List(ctx, "/a.txt"); !errors.Is(err, panefs.ErrNotDir) {
		t.Errorf("expected ErrNotDir, got %v", err)
	}
	if err := a.Mkdir(ctx, "/a.txt/x"); !errors.Is(err, panefs.ErrNotDir) {
		t.Errorf("expected ErrNotDir, got %v", err)
	}
}

func TestAppend(t *testing.T) {
	a, _ := newTestAdapter(t)
	writeFile(t, a, "/log.txt", "one")

	w, err := a.Append(context.Background(), "/log.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	io.WriteString(w, ",two")
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readFile(t, a, "/log.txt"); got != "one,two" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestDeleteAndRename(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)
	writeFile(t, a, "/dir/a.txt", "a")

	if err := a.Delete(ctx, "/dir"); !errors.Is(err, panefs.ErrNotEmpty) {
		t.Errorf("expected non-empty directory error, got %v", err)
	}
	if err := a.Rename(ctx, "/dir/a.txt", "/other/b.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writeFile(t, a, "/c.txt", "c")
	if err := a.Rename(ctx, "/c.txt", "/other/b.txt"); !panefs.IsExist(err) {
		t.Errorf("expected exist error, got %v", err)
	}

	if err := a.Delete(ctx, "/dir"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Delete(ctx, "/dir"); !panefs.IsNotExist(err) {
		t.Errorf("expected not exist, got %v", err)
	}
	if err := a.Delete(ctx, "/"); !errors.Is(err, panefs.ErrNotAllowed) {
		t.Errorf("expected root delete to be refused, got %v", err)
	}
}

func TestBasePath(t *testing.T) {
	a, conn := newTestAdapter(t, WithBasePath("srv/data"))
	conn.nodes["/srv"] = &fakeNode{dir: true}
	conn.nodes["/srv/data"] = &fakeNode{dir: true}
	writeFile(t, a, "/../x.txt", "x")
	if _, ok := conn.nodes["/srv/data/x.txt"]; !ok {
		t.Errorf("expected file under base path, have %v", conn.nodes)
	}
}

func TestUnsupportedCapabilities(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)
	writeFile(t, a, "/a.txt", "abc")

	f := panefs.NewFile(a, panefs.MustParseLocation("ftp://host/a.txt"))
	if _, err := f.OpenRandomRead(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected unsupported random read, got %v", err)
	}
	if _, err := f.OpenRandomWrite(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected unsupported random write, got %v", err)
	}
	if _, err := f.Permissions(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected unsupported permissions, got %v", err)
	}
	if _, err := f.Owner(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected unsupported owner, got %v", err)
	}
	dst := panefs.NewFile(a, panefs.MustParseLocation("ftp://host/b.txt"))
	if err := f.CopyRemote(ctx, dst); !panefs.IsUnsupported(err) {
		t.Errorf("expected unsupported copy, got %v", err)
	}
	if size, err := f.Size(ctx); err != nil || size != 3 {
		t.Errorf("expected size 3, got %d %v", size, err)
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, _ := newTestAdapter(t, WithPollInterval(20*time.Millisecond))

	token, err := a.Watch(ctx, "**.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fired := make(chan struct{})
	token.RegisterChangeCallback(func() { close(fired) })

	writeFile(t, a, "/in/batch.csv", "1,2")

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestMapFTPError(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{ftp.StatusFileUnavailable, panefs.ErrNotExist},
		{ftp.StatusNotLoggedIn, panefs.ErrPermission},
		{ftp.StatusBadFileName, panefs.ErrInvalidName},
		{ftp.StatusExceededStorage, panefs.ErrNoSpace},
		{ftp.StatusNotImplemented, panefs.ErrNotSupported},
	}
	for _, tt := range tests {
		err := mapFTPError("stat", "/a", &textproto.Error{Code: tt.code})
		if !errors.Is(err, tt.want) {
			t.Errorf("code %d: expected %v, got %v", tt.code, tt.want, err)
		}
	}
}

func TestRegisterNeedsHost(t *testing.T) {
	r := panefs.NewRegistry()
	Register(r)
	defer r.Close()
	if _, err := r.Resolve(context.Background(), "ftp:///x"); err == nil {
		t.Error("expected error without host")
	}
}
