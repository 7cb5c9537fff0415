package archivefs

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/archive"
	"github.com/gobeaver/panefs/driver/memory"
)

func createTestZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Date(2022, 1, 2, 3, 4, 6, 0, time.UTC)}
		hdr.SetMode(0o640)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		io.WriteString(w, content)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// putFile stores data in a memory backend and returns it as a File.
func putFile(t *testing.T, name string, data []byte) panefs.File {
	t.Helper()
	mem := memory.New()
	w, err := mem.Create(context.Background(), name)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w.Write(data)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return panefs.NewFile(mem, panefs.MustParseLocation("mem://test"+name))
}

func newZipAdapter(t *testing.T) *Adapter {
	t.Helper()
	data := createTestZip(t, map[string]string{
		"file1.txt":         "content1",
		"dir/file2.txt":     "content2",
		"dir/sub/file3.txt": "content3",
	})
	return New(putFile(t, "/test.zip", data))
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	a := newZipAdapter(t)

	info, err := a.Stat(ctx, "file1.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Path != "/file1.txt" || info.Size != 8 || info.IsDir {
		t.Errorf("unexpected info %+v", info)
	}
	if !info.Has(panefs.AttrMode|panefs.AttrModTime) || info.Mode != 0o640 {
		t.Errorf("expected mode from the zip header, got %v attrs=%b", info.Mode, info.Attrs)
	}
	if info.Has(panefs.AttrOwner) {
		t.Error("zip entries carry no owner")
	}
	if a.Format() != archive.FormatZip {
		t.Errorf("unexpected format %v", a.Format())
	}

	// Implied by dir/sub/file3.txt.
	dir, err := a.Stat(ctx, "/dir/sub")
	if err != nil || !dir.IsDir {
		t.Errorf("expected implied directory, got %+v %v", dir, err)
	}

	if _, err := a.Stat(ctx, "/missing"); !panefs.IsNotExist(err) {
		t.Errorf("expected not exist, got %v", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	a := newZipAdapter(t)

	entries, err := a.List(ctx, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if strings.Join(names, ",") != "dir,file1.txt" {
		t.Errorf("unexpected listing %v", names)
	}

	entries, _ = a.List(ctx, "/dir")
	if len(entries) != 2 || entries[0].Path != "/dir/file2.txt" || entries[1].Path != "/dir/sub" {
		t.Errorf("unexpected listing %+v", entries)
	}

	if _, err := a.List(ctx, "/file1.txt"); !errors.Is(err, panefs.ErrNotDir) {
		t.Errorf("expected ErrNotDir, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	a := newZipAdapter(t)

	rc, err := a.Open(ctx, "/dir/sub/file3.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "content3" {
		t.Errorf("unexpected content %q", data)
	}

	if _, err := a.Open(ctx, "/dir"); !errors.Is(err, panefs.ErrIsDir) {
		t.Errorf("expected ErrIsDir, got %v", err)
	}
}

func TestTarAttributes(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	tw.WriteHeader(&tar.Header{Name: "etc/app.conf", Mode: 0o600, Size: 3, Uname: "root", Gname: "wheel", ModTime: time.Unix(1600000000, 0)})
	tw.Write([]byte("a=1"))
	tw.Close()

	a := New(putFile(t, "/conf.tar", buf.Bytes()))
	f := panefs.NewFile(a, panefs.MustParseLocation("archive:mem://test/conf.tar!/etc/app.conf"))

	ctx := context.Background()
	if owner, err := f.Owner(ctx); err != nil || owner != "root" {
		t.Errorf("expected owner root, got %q %v", owner, err)
	}
	if mode, err := f.Permissions(ctx); err != nil || mode != 0o600 {
		t.Errorf("expected mode 0600, got %v %v", mode, err)
	}

	rc, err := f.Open(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "a=1" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	a := newZipAdapter(t)

	if _, err := a.Create(ctx, "/new.txt"); !panefs.IsUnsupported(err) || !panefs.IsReadOnlyError(err) {
		t.Errorf("expected read-only unsupported error, got %v", err)
	}
	if err := a.Mkdir(ctx, "/d"); !panefs.IsReadOnlyError(err) {
		t.Errorf("expected read-only error, got %v", err)
	}
	if err := a.Delete(ctx, "/file1.txt"); !panefs.IsReadOnlyError(err) {
		t.Errorf("expected read-only error, got %v", err)
	}
	if err := a.Rename(ctx, "/file1.txt", "/x"); !panefs.IsReadOnlyError(err) {
		t.Errorf("expected read-only error, got %v", err)
	}

	f := panefs.NewFile(a, panefs.MustParseLocation("archive:mem://test/test.zip!/file1.txt"))
	if _, err := f.OpenRandomRead(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected unsupported random read, got %v", err)
	}
}

func TestMalformedContainer(t *testing.T) {
	a := New(putFile(t, "/broken.zip", []byte("PK\x03\x04 definitely not a zip")))
	_, err := a.Stat(context.Background(), "/x")
	if !errors.Is(err, panefs.ErrMalformedContainer) {
		t.Errorf("expected malformed container, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	r := panefs.NewRegistry()
	memory.Register(r)
	Register(r)
	defer r.Close()

	outer, err := r.Resolve(ctx, "mem://box/bundle.zip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, err := outer.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Write(createTestZip(t, map[string]string{"notes/todo.md": "- ship"}))
	w.Close()

	entry, err := r.Resolve(ctx, "archive:mem://box/bundle.zip!/notes/todo.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc, err := entry.Open(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "- ship" {
		t.Errorf("unexpected content %q", data)
	}

	if entry.Parent().Location().Path != "/notes" {
		t.Errorf("unexpected parent %v", entry.Parent().Location())
	}
}
