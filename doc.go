// Package panefs provides a virtual file layer for Go: one [File] handle for
// local disks, SFTP and FTP servers, object stores (S3, Google Cloud
// Storage, Azure Blob Storage), memory and the entries of archive files.
//
// Backends implement the small [FileSystem] interface, split into
// [FileReader] and [FileWriter]. Everything else is an optional capability
// that the caller discovers with a type assertion. A backend that lacks a
// capability says so explicitly with an error matching [ErrNotSupported];
// it never degrades silently.
//
// # Storage Backends
//
//   - Local filesystem (github.com/gobeaver/panefs/driver/local)
//   - In-memory (github.com/gobeaver/panefs/driver/memory)
//   - SFTP (github.com/gobeaver/panefs/driver/sftp)
//   - FTP and FTPS (github.com/gobeaver/panefs/driver/ftp)
//   - Amazon S3 (github.com/gobeaver/panefs/driver/s3)
//   - Google Cloud Storage (github.com/gobeaver/panefs/driver/gcs)
//   - Azure Blob Storage (github.com/gobeaver/panefs/driver/azure)
//   - Archive entries: zip, tar, rar, 7z, lst (github.com/gobeaver/panefs/driver/archivefs)
//
// # Locations and the Registry
//
// Files are addressed by [Location] URLs. A [Registry] maps schemes to
// backend factories and keeps one session per realm (scheme, host, port and
// login):
//
//	r, cfg, err := panefs.NewFromEnv(local.Register, s3.Register)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	archivefs.Register(r)
//
//	f, err := r.Resolve(ctx, "/var/log/app.log")
//	size, err := f.Size(ctx)
//
//	entry, err := r.Resolve(ctx, "archive:s3://bucket/site.zip!/index.html")
//	rc, err := entry.Open(ctx)
//
// # Optional Capabilities
//
//	if _, err := f.Owner(ctx); panefs.IsUnsupported(err) {
//	    // the backend has no notion of owners
//	}
//
//	rr, err := f.OpenRandomRead(ctx)
//	if op, ok := panefs.UnsupportedOp(err); ok && op == panefs.OpRandomRead {
//	    // fall back to a sequential stream
//	}
//
// # Searching Content
//
// The window package pages any File through a fixed-size buffer and the
// search package finds byte patterns in it, forwards or backwards:
//
//	src, _ := window.SourceFor(ctx, f)
//	w := window.New(src, window.WithCapacity(64<<10))
//	defer w.Close()
//
//	finder := search.NewFinder(search.NewMatcher([]byte("ERROR"), search.IgnoreCase()), w)
//	off, ok, err := finder.Next()
//
// # Decorators
//
//	ro := panefs.NewReadOnlyFileSystem(fsys)
//	cached := panefs.NewCachingFileSystem(fsys, panefs.NewMemoryCache(), time.Minute)
//
// # Error Handling
//
//	_, err := f.Stat(ctx)
//	if panefs.IsNotExist(err) {
//	    // File does not exist
//	}
//
//	var pathErr *panefs.PathError
//	if errors.As(err, &pathErr) {
//	    fmt.Printf("Operation: %s, Path: %s\n", pathErr.Op, pathErr.Path)
//	}
//
// # Configuration
//
// [GetConfig] reads PANEFS_* environment variables through beaver-kit/config;
// [WithEnvPrefix] selects another prefix.
package panefs
