package panefs

import (
	"context"
	"testing"
)

func TestCopyAcrossRealms(t *testing.T) {
	ctx := context.Background()
	src, dst := newMockFS("src"), newMockFS("dst")
	src.put("/data.txt", "important data")

	err := Copy(ctx, mockFile(src, "a", "/data.txt"), mockFile(dst, "b", "/backup.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := dst.content("/backup.txt"); got != "important data" {
		t.Errorf("copied content = %q", got)
	}
	if _, ok := src.content("/data.txt"); !ok {
		t.Error("Copy must keep the source")
	}
}

func TestCopyDirectory(t *testing.T) {
	ctx := context.Background()
	src, dst := newMockFS("src"), newMockFS("dst")
	src.put("/tree/a.txt", "a")
	src.put("/tree/sub/b.txt", "b")
	src.put("/tree/sub/deeper/c.txt", "c")

	if err := Copy(ctx, mockFile(src, "a", "/tree"), mockFile(dst, "b", "/copy")); err != nil {
		t.Fatal(err)
	}
	for p, want := range map[string]string{
		"/copy/a.txt":            "a",
		"/copy/sub/b.txt":        "b",
		"/copy/sub/deeper/c.txt": "c",
	} {
		if got, _ := dst.content(p); got != want {
			t.Errorf("%s = %q, want %q", p, got, want)
		}
	}
}

func TestCopyMissingSource(t *testing.T) {
	fsys := newMockFS("mock")
	err := Copy(context.Background(), mockFile(fsys, "a", "/nope"), mockFile(fsys, "a", "/x"))
	if !IsNotExist(err) {
		t.Errorf("expected not exist, got %v", err)
	}
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("same realm renames", func(t *testing.T) {
		fsys := newMockFS("mock")
		fsys.put("/a.txt", "a")
		if err := Move(ctx, mockFile(fsys, "h", "/a.txt"), mockFile(fsys, "h", "/b.txt")); err != nil {
			t.Fatal(err)
		}
		if _, ok := fsys.content("/a.txt"); ok {
			t.Error("source should be gone")
		}
		if got, _ := fsys.content("/b.txt"); got != "a" {
			t.Errorf("target = %q", got)
		}
	})

	t.Run("across realms copies and deletes", func(t *testing.T) {
		src, dst := newMockFS("src"), newMockFS("dst")
		src.put("/dir/a.txt", "a")
		src.put("/dir/sub/b.txt", "b")
		if err := Move(ctx, mockFile(src, "a", "/dir"), mockFile(dst, "b", "/dir")); err != nil {
			t.Fatal(err)
		}
		if got, _ := dst.content("/dir/sub/b.txt"); got != "b" {
			t.Errorf("target = %q", got)
		}
		if exists, _ := mockFile(src, "a", "/dir").Exists(ctx); exists {
			t.Error("source tree should be deleted")
		}
	})
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/dir/a.txt", "a")
	fsys.put("/dir/sub/b.txt", "b")

	if err := mockFile(fsys, "h", "/dir").Delete(ctx); err == nil {
		t.Error("Delete of a non-empty directory should fail")
	}
	if err := DeleteAll(ctx, mockFile(fsys, "h", "/dir")); err != nil {
		t.Fatal(err)
	}
	if exists, _ := mockFile(fsys, "h", "/dir").Exists(ctx); exists {
		t.Error("directory should be gone")
	}
	if err := DeleteAll(ctx, mockFile(fsys, "h", "/dir")); err != nil {
		t.Errorf("DeleteAll of a missing file: %v", err)
	}
}

func TestChild(t *testing.T) {
	dir := mockFile(newMockFS("mock"), "h", "/dir")

	child, err := Child(dir, "a.txt")
	if err != nil || child.Location().Path != "/dir/a.txt" {
		t.Errorf("Child() = %v, %v", child, err)
	}
	for _, name := range []string{"", ".", "..", "a/b"} {
		if _, err := Child(dir, name); err == nil {
			t.Errorf("Child(%q) should fail", name)
		}
	}
}
