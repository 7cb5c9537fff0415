package azure

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/gobwas/glob"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/internal/objstore"
	"github.com/gobeaver/panefs/internal/ranged"
)

// copyPollInterval is how often a pending server-side copy is checked.
const copyPollInterval = 500 * time.Millisecond

// Adapter serves one blob container. Directories are implied by blob name
// prefixes, with "dir/" marker blobs for empty ones.
type Adapter struct {
	client       *azblob.Client
	container    string
	keys         objstore.Keys
	pollInterval time.Duration
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithPrefix roots the adapter at a blob name prefix inside the container.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		a.keys = objstore.NewKeys(prefix)
	}
}

// WithPollInterval sets how often Watch lists the container (default: 30 seconds).
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// New creates an adapter for containerName.
func New(client *azblob.Client, containerName string, options ...AdapterOption) *Adapter {
	a := &Adapter{
		client:       client,
		container:    containerName,
		pollInterval: 30 * time.Second,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Name implements panefs.FileSystem.
func (a *Adapter) Name() string { return "azure" }

func (a *Adapter) containerClient() *container.Client {
	return a.client.ServiceClient().NewContainerClient(a.container)
}

func (a *Adapter) blobClient(name string) *blob.Client {
	return a.containerClient().NewBlobClient(name)
}

func fileInfo(p string, size *int64, modTime *time.Time, contentType *string) *panefs.FileInfo {
	info := &panefs.FileInfo{
		Name:  path.Base(p),
		Path:  p,
		Attrs: panefs.AttrSymlink,
	}
	if size != nil {
		info.Size = *size
		info.Attrs |= panefs.AttrSize
	}
	if modTime != nil {
		info.ModTime = *modTime
		info.Attrs |= panefs.AttrModTime
	}
	if contentType != nil {
		info.ContentType = *contentType
	}
	return info
}

func dirInfo(p string) *panefs.FileInfo {
	return &panefs.FileInfo{
		Name:  path.Base(p),
		Path:  p,
		IsDir: true,
		Attrs: panefs.AttrSymlink,
	}
}

func isNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound)
}

// Stat implements panefs.FileReader.
func (a *Adapter) Stat(ctx context.Context, p string) (*panefs.FileInfo, error) {
	p = objstore.Clean(p)
	if p == "/" {
		return dirInfo(p), nil
	}

	props, err := a.blobClient(a.keys.Key(p)).GetProperties(ctx, nil)
	if err == nil {
		return fileInfo(p, props.ContentLength, props.LastModified, props.ContentType), nil
	}
	if !isNotFound(err) {
		return nil, mapAzureError("stat", p, err)
	}

	names, err := a.firstNames(ctx, a.keys.DirKey(p), 1)
	if err != nil {
		return nil, mapAzureError("stat", p, err)
	}
	if len(names) == 0 {
		return nil, &panefs.PathError{Op: "stat", Path: p, Err: panefs.ErrNotExist}
	}
	return dirInfo(p), nil
}

// firstNames returns up to limit blob names under prefix.
func (a *Adapter) firstNames(ctx context.Context, prefix string, limit int32) ([]string, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix:     to.Ptr(prefix),
		MaxResults: to.Ptr(limit),
	})
	if !pager.More() {
		return nil, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, item := range resp.Segment.BlobItems {
		if item.Name != nil {
			names = append(names, *item.Name)
		}
	}
	return names, nil
}

// List implements panefs.FileReader.
func (a *Adapter) List(ctx context.Context, p string) ([]panefs.FileInfo, error) {
	p = objstore.Clean(p)
	prefix := a.keys.DirKey(p)

	pager := a.containerClient().NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix: to.Ptr(prefix),
	})

	var (
		entries []panefs.FileInfo
		found   bool
	)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapAzureError("list", p, err)
		}

		for _, bp := range resp.Segment.BlobPrefixes {
			if bp.Name == nil {
				continue
			}
			found = true
			entries = append(entries, *dirInfo(a.keys.Path(*bp.Name)))
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			found = true
			if *item.Name == prefix {
				// Directory marker
				continue
			}
			var size *int64
			var modTime *time.Time
			var contentType *string
			if item.Properties != nil {
				size, modTime, contentType = item.Properties.ContentLength, item.Properties.LastModified, item.Properties.ContentType
			}
			entries = append(entries, *fileInfo(a.keys.Path(*item.Name), size, modTime, contentType))
		}
	}

	if !found && p != "/" {
		info, err := a.Stat(ctx, p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir {
			return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotDir}
		}
	}
	return entries, nil
}

// Open implements panefs.FileReader.
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	p = objstore.Clean(p)
	resp, err := a.client.DownloadStream(ctx, a.container, a.keys.Key(p), nil)
	if err != nil {
		return nil, a.openError(ctx, "open", p, err)
	}
	return resp.Body, nil
}

func (a *Adapter) openError(ctx context.Context, op, p string, err error) error {
	if isNotFound(err) {
		if info, statErr := a.Stat(ctx, p); statErr == nil && info.IsDir {
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
		}
	}
	return mapAzureError(op, p, err)
}

// OpenRandom implements panefs.CanRandomRead with ranged downloads.
func (a *Adapter) OpenRandom(ctx context.Context, p string) (panefs.RandomReader, error) {
	p = objstore.Clean(p)
	name := a.keys.Key(p)

	props, err := a.blobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return nil, a.openError(ctx, "open", p, err)
	}

	// Pin the ETag so that every range reads the same blob version.
	opts := &azblob.DownloadStreamOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfMatch: props.ETag},
		},
	}
	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}

	return ranged.New(ctx, size, func(ctx context.Context, off, n int64) (io.ReadCloser, error) {
		rangeOpts := *opts
		rangeOpts.Range = blob.HTTPRange{Offset: off, Count: n}
		resp, err := a.client.DownloadStream(ctx, a.container, name, &rangeOpts)
		if err != nil {
			return nil, mapAzureError("read", p, err)
		}
		return resp.Body, nil
	}), nil
}

// Create implements panefs.FileWriter. The blob is uploaded when the writer
// is closed.
func (a *Adapter) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	p = objstore.Clean(p)
	if p == "/" {
		return nil, &panefs.PathError{Op: "create", Path: p, Err: panefs.ErrIsDir}
	}
	return objstore.NewWriter(func(data []byte) error {
		return a.upload(ctx, "create", p, a.keys.Key(p), data)
	}), nil
}

func (a *Adapter) upload(ctx context.Context, op, p, name string, data []byte) error {
	opts := &azblob.UploadBufferOptions{}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(ct)}
	}
	if _, err := a.client.UploadBuffer(ctx, a.container, name, data, opts); err != nil {
		return mapAzureError(op, p, err)
	}
	return nil
}

// Mkdir implements panefs.FileWriter by uploading a directory marker.
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	p = objstore.Clean(p)
	if p == "/" {
		return nil
	}
	return a.upload(ctx, "mkdir", p, a.keys.DirKey(p), nil)
}

// Delete implements panefs.FileWriter.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	p = objstore.Clean(p)
	if p == "/" {
		return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotAllowed}
	}

	info, err := a.Stat(ctx, p)
	if err != nil {
		return err
	}

	name := a.keys.Key(p)
	if info.IsDir {
		marker := a.keys.DirKey(p)
		names, err := a.firstNames(ctx, marker, 2)
		if err != nil {
			return mapAzureError("delete", p, err)
		}
		for _, n := range names {
			if n != marker {
				return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotEmpty}
			}
		}
		name = marker
	}

	if _, err := a.client.DeleteBlob(ctx, a.container, name, nil); err != nil {
		return mapAzureError("delete", p, err)
	}
	return nil
}

// Rename implements panefs.FileWriter as copy plus delete, blob by blob
// for a directory.
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	src, dst = objstore.Clean(src), objstore.Clean(dst)

	info, err := a.Stat(ctx, src)
	if err != nil {
		return err
	}
	if _, err := a.Stat(ctx, dst); err == nil {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrExist}
	} else if !panefs.IsNotExist(err) {
		return err
	}

	if !info.IsDir {
		return a.move(ctx, a.keys.Key(src), a.keys.Key(dst), src)
	}
	if strings.HasPrefix(dst+"/", src+"/") {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrInvalidName}
	}

	srcPrefix, dstPrefix := a.keys.DirKey(src), a.keys.DirKey(dst)
	var names []string
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: to.Ptr(srcPrefix)})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return mapAzureError("rename", src, err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	for _, name := range names {
		if err := a.move(ctx, name, dstPrefix+strings.TrimPrefix(name, srcPrefix), src); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) move(ctx context.Context, srcName, dstName, p string) error {
	if err := a.copyBlob(ctx, srcName, dstName); err != nil {
		return mapAzureError("rename", p, err)
	}
	if _, err := a.client.DeleteBlob(ctx, a.container, srcName, nil); err != nil {
		return mapAzureError("rename", p, err)
	}
	return nil
}

// copyBlob starts a server-side copy and waits for it to finish. The source
// is addressed through a short-lived read SAS.
func (a *Adapter) copyBlob(ctx context.Context, srcName, dstName string) error {
	srcURL, err := a.blobClient(srcName).GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(15*time.Minute), nil)
	if err != nil {
		srcURL = a.blobClient(srcName).URL()
	}

	dst := a.blobClient(dstName)
	resp, err := dst.StartCopyFromURL(ctx, srcURL, nil)
	if err != nil {
		return err
	}

	status := resp.CopyStatus
	for status != nil && *status == blob.CopyStatusTypePending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(copyPollInterval):
		}
		props, err := dst.GetProperties(ctx, nil)
		if err != nil {
			return err
		}
		status = props.CopyStatus
	}
	if status != nil && *status != blob.CopyStatusTypeSuccess {
		return errors.New("copy " + string(*status))
	}
	return nil
}

// Copy implements panefs.CanCopy using Azure's native StartCopyFromURL.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	src, dst = objstore.Clean(src), objstore.Clean(dst)
	info, err := a.Stat(ctx, src)
	if err != nil {
		return err
	}
	if info.IsDir {
		return &panefs.PathError{Op: "copy", Path: src, Err: panefs.ErrIsDir}
	}
	if err := a.copyBlob(ctx, a.keys.Key(src), a.keys.Key(dst)); err != nil {
		return mapAzureError("copy", src, err)
	}
	return nil
}

// Watch implements panefs.CanWatch by polling the container listing.
func (a *Adapter) Watch(ctx context.Context, pattern string) (panefs.ChangeToken, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, &panefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	initial, err := a.matchingState(ctx, g)
	if err != nil {
		return nil, err
	}

	return panefs.NewPollingChangeToken(ctx, panefs.PollingConfig{
		Interval: a.pollInterval,
		CheckFunc: func() bool {
			current, err := a.matchingState(ctx, g)
			if err != nil {
				return false
			}
			return !initial.Equal(current)
		},
	}), nil
}

func (a *Adapter) matchingState(ctx context.Context, g glob.Glob) (objstore.Snapshot, error) {
	state := make(objstore.Snapshot)

	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(a.keys.Prefix()),
	})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapAzureError("watch", "/", err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			rel := a.keys.Rel(*item.Name)
			if !g.Match(rel) {
				continue
			}
			var st objstore.ObjectState
			if item.Properties != nil {
				if item.Properties.LastModified != nil {
					st.ModTime = *item.Properties.LastModified
				}
				if item.Properties.ContentLength != nil {
					st.Size = *item.Properties.ContentLength
				}
			}
			state[rel] = st
		}
	}
	return state, nil
}

// mapAzureError maps Azure errors to panefs errors
func mapAzureError(op, p string, err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotExist}
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ContainerAlreadyExists):
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrExist}
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrPermission}
	}
	return &panefs.PathError{Op: op, Path: p, Err: err}
}
