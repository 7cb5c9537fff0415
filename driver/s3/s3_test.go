package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gobeaver/panefs"
)

// fakeS3 keeps objects of a single bucket in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	mod     map[string]time.Time
	ranges  []string
}

func newFake() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), mod: make(map[string]time.Time)}
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix, delim := aws.ToString(in.Prefix), aws.ToString(in.Delimiter)
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seen := make(map[string]bool)
	for _, k := range keys {
		if in.MaxKeys != nil && int32(len(out.Contents)+len(out.CommonPrefixes)) >= *in.MaxKeys {
			break
		}
		rest := k[len(prefix):]
		if i := strings.Index(rest, delim); delim != "" && i >= 0 {
			cp := prefix + rest[:i+1]
			if !seen[cp] {
				seen[cp] = true
				out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
			}
			continue
		}
		mod := f.mod[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: &mod,
		})
	}
	return out, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	mod := f.mod[aws.ToString(in.Key)]
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data))), LastModified: &mod}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	if in.Range != nil {
		f.ranges = append(f.ranges, *in.Range)
		var from, to int
		if _, err := fmt.Sscanf(*in.Range, "bytes=%d-%d", &from, &to); err != nil {
			return nil, err
		}
		data = data[from : to+1]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.mod[key] = time.Now()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	delete(f.mod, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	source, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	_, srcKey, _ := strings.Cut(source, "/")

	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[srcKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.objects[aws.ToString(in.Key)] = append([]byte(nil), data...)
	f.mod[aws.ToString(in.Key)] = time.Now()
	return &s3.CopyObjectOutput{}, nil
}

func put(t *testing.T, a *Adapter, p, content string) {
	t.Helper()
	w, err := a.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	io.WriteString(w, content)
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", p, err)
	}
}

func TestCreateAndStat(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	a := New(fake, "bucket", WithPrefix("data"))

	w, _ := a.Create(ctx, "/docs/readme.txt")
	io.WriteString(w, "hello")
	if _, ok := fake.objects["data/docs/readme.txt"]; ok {
		t.Error("object should not exist before Close")
	}
	w.Close()

	info, err := a.Stat(ctx, "/docs/readme.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Size != 5 || info.IsDir || !info.Has(panefs.AttrSize|panefs.AttrModTime) {
		t.Errorf("unexpected info %+v", info)
	}
	if info.Has(panefs.AttrMode) || info.Has(panefs.AttrOwner) {
		t.Errorf("objects have no mode or owner, attrs=%b", info.Attrs)
	}

	dir, err := a.Stat(ctx, "/docs")
	if err != nil || !dir.IsDir {
		t.Errorf("expected implied directory, got %+v %v", dir, err)
	}

	if _, err := a.Stat(ctx, "/nope"); !panefs.IsNotExist(err) {
		t.Errorf("expected not exist, got %v", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	a := New(newFake(), "bucket")
	put(t, a, "/b.txt", "b")
	put(t, a, "/a.txt", "a")
	put(t, a, "/sub/c.txt", "c")
	a.Mkdir(ctx, "/empty")

	entries, err := a.List(ctx, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if strings.Join(names, ",") != "empty,sub,a.txt,b.txt" {
		t.Errorf("unexpected listing %v", names)
	}

	empty, err := a.List(ctx, "/empty")
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty directory, got %v %v", empty, err)
	}
	if _, err := a.List(ctx, "/a.txt"); !errors.Is(err, panefs.ErrNotDir) {
		t.Errorf("expected ErrNotDir, got %v", err)
	}
	if _, err := a.List(ctx, "/missing"); !panefs.IsNotExist(err) {
		t.Errorf("expected not exist, got %v", err)
	}
}

func TestOpenRandom(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	a := New(fake, "bucket")
	put(t, a, "/f.bin", "0123456789")

	r, err := a.OpenRandom(ctx, "/f.bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	buf := make([]byte, 3)
	if _, err := r.ReadAt(buf, 7); err != nil || string(buf) != "789" {
		t.Errorf("ReadAt = %q %v", buf, err)
	}
	if r.Size() != 10 {
		t.Errorf("expected size 10, got %d", r.Size())
	}
	if len(fake.ranges) != 1 || fake.ranges[0] != "bytes=7-9" {
		t.Errorf("unexpected range requests %v", fake.ranges)
	}

	a.Mkdir(ctx, "/dir")
	if _, err := a.Open(ctx, "/dir"); !errors.Is(err, panefs.ErrIsDir) {
		t.Errorf("expected ErrIsDir, got %v", err)
	}
}

func TestDeleteAndRename(t *testing.T) {
	ctx := context.Background()
	a := New(newFake(), "bucket")
	put(t, a, "/dir/a.txt", "a")
	put(t, a, "/dir/sub/b.txt", "b")

	if err := a.Delete(ctx, "/dir"); !errors.Is(err, panefs.ErrNotEmpty) {
		t.Errorf("expected ErrNotEmpty, got %v", err)
	}
	if err := a.Delete(ctx, "/"); !errors.Is(err, panefs.ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed, got %v", err)
	}

	if err := a.Rename(ctx, "/dir", "/moved"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.Stat(ctx, "/dir"); !panefs.IsNotExist(err) {
		t.Errorf("expected source to be gone, got %v", err)
	}
	info, err := a.Stat(ctx, "/moved/sub/b.txt")
	if err != nil || info.Size != 1 {
		t.Errorf("expected moved file, got %+v %v", info, err)
	}

	put(t, a, "/c.txt", "c")
	if err := a.Rename(ctx, "/c.txt", "/moved/a.txt"); !panefs.IsExist(err) {
		t.Errorf("expected exist error, got %v", err)
	}

	a.Mkdir(ctx, "/gone")
	if err := a.Delete(ctx, "/gone"); err != nil {
		t.Errorf("expected empty directory delete, got %v", err)
	}
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	a := New(newFake(), "bucket", WithPrefix("p"))
	put(t, a, "/with space.txt", "data")

	if err := a.Copy(ctx, "/with space.txt", "/copy.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc, err := a.Open(ctx, "/copy.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "data" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestUnsupportedCapabilities(t *testing.T) {
	ctx := context.Background()
	a := New(newFake(), "bucket")
	put(t, a, "/f.txt", "x")
	f := panefs.NewFile(a, panefs.MustParseLocation("s3://bucket/f.txt"))

	if _, err := f.Append(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected append to be unsupported, got %v", err)
	}
	if _, err := f.OpenRandomWrite(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected random write to be unsupported, got %v", err)
	}
	if _, err := f.Permissions(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected permissions to be unsupported, got %v", err)
	}
	if _, err := f.Owner(ctx); !panefs.IsUnsupported(err) {
		t.Errorf("expected owner to be unsupported, got %v", err)
	}
	if size, err := f.Size(ctx); err != nil || size != 1 {
		t.Errorf("expected size 1, got %d %v", size, err)
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := New(newFake(), "bucket", WithPollInterval(10*time.Millisecond))

	token, err := a.Watch(ctx, "**.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fired := make(chan struct{})
	token.RegisterChangeCallback(func() { close(fired) })

	put(t, a, "/notes.txt", "ignored")
	put(t, a, "/conf/app.json", "{}")

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}
}
