package panefs

import (
	"context"
	"errors"
	"io"
	"runtime"
	"testing"
)

func TestFileStatIsCached(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/a.txt", "hello")
	f := mockFile(fsys, "h", "/a.txt")

	for range 3 {
		if size, err := f.Size(ctx); err != nil || size != 5 {
			t.Fatalf("Size() = %d, %v", size, err)
		}
	}
	if n := fsys.statCount(); n != 1 {
		t.Errorf("expected 1 backend stat, got %d", n)
	}

	fsys.put("/a.txt", "hello world")
	f.Refresh()
	if size, _ := f.Size(ctx); size != 11 {
		t.Errorf("Size() after Refresh = %d, want 11", size)
	}

	info, _ := f.Stat(ctx)
	info.Size = 0
	if size, _ := f.Size(ctx); size != 11 {
		t.Error("Stat must return a copy of the cached info")
	}
}

func TestFileUnknownAttributes(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/a.txt", "hello")
	f := mockFile(fsys, "h", "/a.txt")

	tests := []struct {
		op  Operation
		get func() error
	}{
		{OpOwner, func() error { _, err := f.Owner(ctx); return err }},
		{OpGroup, func() error { _, err := f.Group(ctx); return err }},
		{OpPermissions, func() error { _, err := f.Permissions(ctx); return err }},
		{OpSymlink, func() error { _, err := f.IsSymlink(ctx); return err }},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			op, ok := UnsupportedOp(tt.get())
			if !ok || op != tt.op {
				t.Errorf("UnsupportedOp() = %q, %v; want %q", op, ok, tt.op)
			}
		})
	}

	if _, err := f.ModTime(ctx); err != nil {
		t.Errorf("ModTime() is known: %v", err)
	}

	fsys.attrs |= AttrOwner
	f.Refresh()
	if _, err := f.Owner(ctx); err != nil {
		t.Errorf("Owner() once reported: %v", err)
	}
}

func TestFileMissingCapabilities(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/a.txt", "hello")
	f := mockFile(fsys, "h", "/a.txt")
	g := mockFile(fsys, "h", "/b.txt")

	tests := []struct {
		op  Operation
		err error
	}{
		{OpAppend, func() error { _, err := f.Append(ctx); return err }()},
		{OpRandomRead, func() error { _, err := f.OpenRandomRead(ctx); return err }()},
		{OpRandomWrite, func() error { _, err := f.OpenRandomWrite(ctx); return err }()},
		{OpCopyRemote, f.CopyRemote(ctx, g)},
	}
	for _, tt := range tests {
		op, ok := UnsupportedOp(tt.err)
		if !ok || op != tt.op {
			t.Errorf("UnsupportedOp() = %q, %v; want %q", op, ok, tt.op)
		}
	}
}

func TestFileExistsAndIsDir(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/dir/a.txt", "hello")

	exists, err := mockFile(fsys, "h", "/missing").Exists(ctx)
	if err != nil || exists {
		t.Errorf("Exists() = %v, %v", exists, err)
	}
	isDir, err := mockFile(fsys, "h", "/dir").IsDir(ctx)
	if err != nil || !isDir {
		t.Errorf("IsDir() = %v, %v", isDir, err)
	}
	if _, err := mockFile(fsys, "h", "/missing").IsDir(ctx); !IsNotExist(err) {
		t.Errorf("IsDir() on a missing file: %v", err)
	}
}

func TestFileReadWrite(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	f := mockFile(fsys, "h", "/notes/todo.txt")

	w, err := f.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.WriteString(w, "buy milk")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	rc, err := f.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "buy milk" {
		t.Errorf("content = %q", data)
	}
}

func TestFileParent(t *testing.T) {
	fsys := newMockFS("mock")
	f := mockFile(fsys, "h", "/a/b/c.txt")

	p := f.Parent()
	if p == nil || p.Location().Path != "/a/b" {
		t.Fatalf("Parent() = %v", p)
	}
	if f.Parent() != p {
		t.Error("a live parent should be reused")
	}
	if p.Parent().Parent().Location().Path != "/" {
		t.Error("parent chain should reach the root")
	}
	if root := p.Parent().Parent(); root.Parent() != nil {
		t.Error("the root has no parent")
	}
	runtime.KeepAlive(p)
}

func TestFileListSetsParent(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/dir/a.txt", "a")
	fsys.put("/dir/b.txt", "bb")
	dir := mockFile(fsys, "h", "/dir")

	children, err := dir.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	before := fsys.statCount()
	for _, child := range children {
		if child.Parent() != dir {
			t.Errorf("%s: Parent() should be the listed directory", child.Name())
		}
		if _, err := child.Size(ctx); err != nil {
			t.Error(err)
		}
	}
	if fsys.statCount() != before {
		t.Error("listed children should carry their info")
	}
	runtime.KeepAlive(dir)
}

func TestFileCrossRealm(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/a.txt", "a")

	err := mockFile(fsys, "one", "/a.txt").Rename(ctx, mockFile(fsys, "two", "/a.txt"))
	if !errors.Is(err, ErrCrossRealm) {
		t.Errorf("Rename() across realms = %v", err)
	}
}
