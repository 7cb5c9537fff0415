package panefs

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestReadOnlyFileSystem(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/config.json", `{"a":1}`)
	ro := NewReadOnlyFileSystem(fsys)

	rc, err := ro.Open(ctx, "/config.json")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != `{"a":1}` {
		t.Errorf("content = %q", data)
	}

	mutations := map[Operation]error{
		OpWrite:  func() error { _, err := ro.Create(ctx, "/new.txt"); return err }(),
		OpMkdir:  ro.Mkdir(ctx, "/dir"),
		OpDelete: ro.Delete(ctx, "/config.json"),
		OpRename: ro.Rename(ctx, "/config.json", "/b.json"),
	}
	for op, err := range mutations {
		if !IsReadOnlyError(err) {
			t.Errorf("%s: expected a read-only error, got %v", op, err)
		}
		if got, ok := UnsupportedOp(err); !ok || got != op {
			t.Errorf("%s: UnsupportedOp() = %q, %v", op, got, ok)
		}
	}
	if _, ok := fsys.content("/config.json"); !ok {
		t.Error("the wrapped file system must be untouched")
	}

	if _, err := ro.OpenRandom(ctx, "/config.json"); !IsUnsupported(err) {
		t.Errorf("OpenRandom on a backend without random reads: %v", err)
	}
}

func TestReadOnlyOptions(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/a.txt", "a")

	ro := NewReadOnlyFileSystem(fsys, WithAllowMkdir(true), WithAllowDelete(true))
	if err := ro.Mkdir(ctx, "/dir"); err != nil {
		t.Errorf("Mkdir allowed: %v", err)
	}
	if err := ro.Delete(ctx, "/a.txt"); err != nil {
		t.Errorf("Delete allowed: %v", err)
	}

	denied := errors.New("quota")
	var attempts []Operation
	guarded := NewReadOnlyFileSystem(fsys, WithWriteAttemptHandler(func(op Operation, path string) error {
		attempts = append(attempts, op)
		if path == "/scratch.txt" {
			return nil
		}
		return denied
	}))
	w, err := guarded.Create(ctx, "/scratch.txt")
	if err != nil {
		t.Fatalf("handler allowed the write: %v", err)
	}
	w.Close()
	if _, err := guarded.Create(ctx, "/other.txt"); !errors.Is(err, denied) {
		t.Errorf("expected the handler's error, got %v", err)
	}
	if len(attempts) != 2 {
		t.Errorf("handler calls = %v", attempts)
	}
}
