package panefs_test

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/driver/memory"
)

func write(ctx context.Context, f panefs.File, content string) {
	w, err := f.Create(ctx)
	if err != nil {
		panic(err)
	}
	_, _ = io.WriteString(w, content)
	if err := w.Close(); err != nil {
		panic(err)
	}
}

func ExampleRegistry() {
	ctx := context.Background()

	r := panefs.NewRegistry()
	memory.Register(r)
	defer r.Close()

	f, _ := r.Resolve(ctx, "mem://demo/notes/todo.txt")
	write(ctx, f, "buy milk")

	size, _ := f.Size(ctx)
	fmt.Println(f.Location(), size)
	fmt.Println("parent:", f.Parent().Location().Path)
	// Output:
	// mem://demo/notes/todo.txt 8
	// parent: /notes
}

func ExampleCopy() {
	ctx := context.Background()

	r := panefs.NewRegistry()
	memory.Register(r)
	defer r.Close()

	// Different realms: content is streamed between the two sessions.
	src, _ := r.Resolve(ctx, "mem://source/data.txt")
	dst, _ := r.Resolve(ctx, "mem://backup/data.txt")
	write(ctx, src, "important data")

	if err := panefs.Copy(ctx, src, dst); err != nil {
		fmt.Println("Error:", err)
		return
	}

	rc, _ := dst.Open(ctx)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	fmt.Println(string(data))
	// Output:
	// important data
}

func ExampleIsUnsupported() {
	ctx := context.Background()
	fsys := memory.New()

	f := panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo/a.txt"))
	write(ctx, f, "x")

	// The memory backend has no owners.
	_, err := f.Owner(ctx)
	op, _ := panefs.UnsupportedOp(err)
	fmt.Println(panefs.IsUnsupported(err), op)
	// Output:
	// true owner
}

func ExampleFindFiles() {
	ctx := context.Background()
	fsys := memory.New()
	for _, p := range []string{"/a.txt", "/b.jpg", "/docs/c.txt", "/docs/d.md"} {
		write(ctx, panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo"+p)), p)
	}
	root := panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo/"))

	files, _ := panefs.FindFiles(ctx, root, panefs.Glob("*.txt"), true)
	for _, f := range files {
		fmt.Println(f.Location().Path)
	}
	// Output:
	// /a.txt
	// /docs/c.txt
}

func ExampleAnd() {
	ctx := context.Background()
	fsys := memory.New()
	write(ctx, panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo/small.log")), "tiny")
	write(ctx, panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo/large.log")), strings.Repeat("x", 1024))
	root := panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo/"))

	selector := panefs.And(
		panefs.Glob("*.log"),
		panefs.FuncSelector(func(info *panefs.FileInfo) bool {
			return info.Size > 100
		}),
	)
	files, _ := panefs.FindFiles(ctx, root, selector, false)
	for _, f := range files {
		fmt.Println(f.Name())
	}
	// Output:
	// large.log
}

func ExampleNot() {
	ctx := context.Background()
	fsys := memory.New()
	for _, name := range []string{"keep.txt", "skip.tmp", "also.txt"} {
		write(ctx, panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo/"+name)), name)
	}
	root := panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo/"))

	files, _ := panefs.FindFiles(ctx, root, panefs.Not(panefs.Glob("*.tmp")), false)
	for _, f := range files {
		fmt.Println(f.Name())
	}
	// Output:
	// also.txt
	// keep.txt
}

func ExampleIsNotExist() {
	ctx := context.Background()
	f := panefs.NewFile(memory.New(), panefs.MustParseLocation("mem://demo/missing.txt"))

	_, err := f.Stat(ctx)
	if panefs.IsNotExist(err) {
		fmt.Println("File does not exist")
	}
	// Output:
	// File does not exist
}

func ExampleNewReadOnlyFileSystem() {
	ctx := context.Background()
	fsys := memory.New()
	write(ctx, panefs.NewFile(fsys, panefs.MustParseLocation("mem://demo/config.json")), `{"setting": "value"}`)

	ro := panefs.NewReadOnlyFileSystem(fsys)

	rc, _ := ro.Open(ctx, "/config.json")
	data, _ := io.ReadAll(rc)
	rc.Close()
	fmt.Println("Read:", string(data))

	_, err := ro.Create(ctx, "/new.txt")
	if panefs.IsReadOnlyError(err) {
		fmt.Println("Write blocked: filesystem is read-only")
	}
	// Output:
	// Read: {"setting": "value"}
	// Write blocked: filesystem is read-only
}

func ExampleChecksums() {
	ctx := context.Background()
	f := panefs.NewFile(memory.New(), panefs.MustParseLocation("mem://demo/data.txt"))
	write(ctx, f, "Hello, World!")

	sha, _ := panefs.Checksum(ctx, f, panefs.ChecksumSHA256)
	fmt.Println("SHA256:", sha)

	sums, _ := panefs.Checksums(ctx, f, []panefs.ChecksumAlgorithm{
		panefs.ChecksumMD5,
		panefs.ChecksumCRC32,
	})
	fmt.Println("MD5:", sums[panefs.ChecksumMD5])
	fmt.Println("CRC32:", sums[panefs.ChecksumCRC32])
	// Output:
	// SHA256: dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f
	// MD5: 65a8e27d8879283831b664bd8b7f0ad4
	// CRC32: ec4ac3d0
}

func ExampleNewCompositeChangeToken() {
	config := panefs.NewCallbackChangeToken()
	data := panefs.NewCallbackChangeToken()

	composite := panefs.NewCompositeChangeToken(config, data)
	composite.RegisterChangeCallback(func() {
		fmt.Println("something changed")
	})

	fmt.Println("Has changed:", composite.HasChanged())
	data.SignalChange()
	fmt.Println("Has changed:", composite.HasChanged())
	// Output:
	// Has changed: false
	// something changed
	// Has changed: true
}
