package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gobwas/glob"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/internal/objstore"
	"github.com/gobeaver/panefs/internal/ranged"
)

// API is the subset of *s3.Client used by the adapter.
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// Adapter serves one bucket. Directories are implied by key prefixes; Mkdir
// writes an empty "dir/" marker object so that empty directories survive.
//
// Objects carry no permissions, owner or group, and cannot be appended to or
// written at an offset.
type Adapter struct {
	client       API
	bucket       string
	keys         objstore.Keys
	pollInterval time.Duration
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithPrefix roots the adapter at a key prefix inside the bucket.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		a.keys = objstore.NewKeys(prefix)
	}
}

// WithPollInterval sets how often Watch lists the bucket (default: 30 seconds).
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// New creates an adapter for bucket.
func New(client API, bucket string, options ...AdapterOption) *Adapter {
	a := &Adapter{
		client:       client,
		bucket:       bucket,
		pollInterval: 30 * time.Second,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Name implements panefs.FileSystem.
func (a *Adapter) Name() string { return "s3" }

func fileInfo(p string, size *int64, modTime *time.Time, contentType *string) *panefs.FileInfo {
	info := &panefs.FileInfo{
		Name:  path.Base(p),
		Path:  p,
		Size:  aws.ToInt64(size),
		Attrs: panefs.AttrSize | panefs.AttrSymlink,
	}
	if modTime != nil {
		info.ModTime = *modTime
		info.Attrs |= panefs.AttrModTime
	}
	if contentType != nil {
		info.ContentType = *contentType
	} else {
		info.ContentType = mime.TypeByExtension(path.Ext(p))
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

// Stat implements panefs.FileReader.
func (a *Adapter) Stat(ctx context.Context, p string) (*panefs.FileInfo, error) {
	p = objstore.Clean(p)
	if p == "/" {
		return dirInfo(p), nil
	}

	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keys.Key(p)),
	})
	if err == nil {
		return fileInfo(p, out.ContentLength, out.LastModified, out.ContentType), nil
	}
	if !isNotFound(err) {
		return nil, mapS3Error("stat", p, err)
	}

	keys, err := a.firstKeys(ctx, a.keys.DirKey(p), 1)
	if err != nil {
		return nil, mapS3Error("stat", p, err)
	}
	if len(keys) == 0 {
		return nil, &panefs.PathError{Op: "stat", Path: p, Err: panefs.ErrNotExist}
	}
	return dirInfo(p), nil
}

// firstKeys returns up to limit keys under prefix.
func (a *Adapter) firstKeys(ctx context.Context, prefix string, limit int32) ([]string, error) {
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}

// List implements panefs.FileReader.
func (a *Adapter) List(ctx context.Context, p string) ([]panefs.FileInfo, error) {
	p = objstore.Clean(p)
	prefix := a.keys.DirKey(p)

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var (
		entries []panefs.FileInfo
		found   bool
	)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("list", p, err)
		}

		for _, cp := range page.CommonPrefixes {
			found = true
			entries = append(entries, *dirInfo(a.keys.Path(aws.ToString(cp.Prefix))))
		}
		for _, obj := range page.Contents {
			found = true
			key := aws.ToString(obj.Key)
			if key == prefix {
				// Directory marker
				continue
			}
			entries = append(entries, *fileInfo(a.keys.Path(key), obj.Size, obj.LastModified, nil))
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
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keys.Key(p)),
	})
	if err != nil {
		return nil, a.openError(ctx, "open", p, err)
	}
	return out.Body, nil
}

// openError reports a missing key that is really a directory as ErrIsDir.
func (a *Adapter) openError(ctx context.Context, op, p string, err error) error {
	if isNotFound(err) {
		if info, statErr := a.Stat(ctx, p); statErr == nil && info.IsDir {
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
		}
	}
	return mapS3Error(op, p, err)
}

// OpenRandom implements panefs.CanRandomRead with ranged GetObject requests.
func (a *Adapter) OpenRandom(ctx context.Context, p string) (panefs.RandomReader, error) {
	p = objstore.Clean(p)
	key := a.keys.Key(p)

	head, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, a.openError(ctx, "open", p, err)
	}

	return ranged.New(ctx, aws.ToInt64(head.ContentLength), func(ctx context.Context, off, n int64) (io.ReadCloser, error) {
		out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+n-1)),
		})
		if err != nil {
			return nil, mapS3Error("read", p, err)
		}
		return out.Body, nil
	}), nil
}

// Create implements panefs.FileWriter. The object is uploaded when the
// writer is closed.
func (a *Adapter) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	p = objstore.Clean(p)
	if p == "/" {
		return nil, &panefs.PathError{Op: "create", Path: p, Err: panefs.ErrIsDir}
	}
	return objstore.NewWriter(func(data []byte) error {
		return a.put(ctx, "create", p, data)
	}), nil
}

func (a *Adapter) put(ctx context.Context, op, p string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.keys.Key(p)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return mapS3Error(op, p, err)
	}
	return nil
}

// Mkdir implements panefs.FileWriter by writing a directory marker. Parents
// are implied by the key.
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	p = objstore.Clean(p)
	if p == "/" {
		return nil
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.keys.DirKey(p)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return mapS3Error("mkdir", p, err)
	}
	return nil
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

	key := a.keys.Key(p)
	if info.IsDir {
		marker := a.keys.DirKey(p)
		keys, err := a.firstKeys(ctx, marker, 2)
		if err != nil {
			return mapS3Error("delete", p, err)
		}
		for _, k := range keys {
			if k != marker {
				return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotEmpty}
			}
		}
		key = marker
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error("delete", p, err)
	}
	return nil
}

// Rename implements panefs.FileWriter as copy plus delete. A directory is
// moved object by object and is not atomic.
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
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(srcPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapS3Error("rename", src, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if err := a.move(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix), src); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Adapter) move(ctx context.Context, srcKey, dstKey, p string) error {
	if err := a.copyKey(ctx, srcKey, dstKey); err != nil {
		return mapS3Error("rename", p, err)
	}
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(srcKey),
	})
	if err != nil {
		return mapS3Error("rename", p, err)
	}
	return nil
}

func (a *Adapter) copyKey(ctx context.Context, srcKey, dstKey string) error {
	// CopySource is "bucket/key", URL-encoded.
	source := (&url.URL{Path: a.bucket + "/" + srcKey}).EscapedPath()
	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(dstKey),
	})
	return err
}

// Copy implements panefs.CanCopy using S3's native CopyObject API.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	src, dst = objstore.Clean(src), objstore.Clean(dst)
	info, err := a.Stat(ctx, src)
	if err != nil {
		return err
	}
	if info.IsDir {
		return &panefs.PathError{Op: "copy", Path: src, Err: panefs.ErrIsDir}
	}
	if err := a.copyKey(ctx, a.keys.Key(src), a.keys.Key(dst)); err != nil {
		return mapS3Error("copy", src, err)
	}
	return nil
}

// Watch implements panefs.CanWatch by polling the listing of matching
// objects.
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
				// Can't determine change, don't signal
				return false
			}
			return !initial.Equal(current)
		},
	}), nil
}

func (a *Adapter) matchingState(ctx context.Context, g glob.Glob) (objstore.Snapshot, error) {
	state := make(objstore.Snapshot)

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.keys.Prefix()),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("watch", "/", err)
		}
		for _, obj := range page.Contents {
			rel := a.keys.Rel(aws.ToString(obj.Key))
			if g.Match(rel) {
				state[rel] = objstore.ObjectState{ModTime: aws.ToTime(obj.LastModified), Size: aws.ToInt64(obj.Size)}
			}
		}
	}
	return state, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &notFound)
}

func mapS3Error(op, p string, err error) error {
	if isNotFound(err) {
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotExist}
	}
	return &panefs.PathError{Op: op, Path: p, Err: err}
}
