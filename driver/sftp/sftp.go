package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/gobeaver/panefs"
)

// Adapter provides an SFTP implementation of panefs.FileSystem. One
// adapter holds one SSH session; it reconnects when the session drops.
//
// SFTP has no server-side copy, so CopyRemote is unsupported and
// panefs.Copy streams through the client.
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
	logger   *slog.Logger

	pollInterval time.Duration
}

// Config holds SFTP connection configuration
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM encoded private key

	// KnownHostsFile enables host key checking. Empty accepts any host key.
	KnownHostsFile string
	Timeout        time.Duration
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath roots every path at basePath on the server.
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = path.Clean("/" + basePath)
	}
}

// WithLogger sets the logger for session events.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithPollInterval sets how often Watch walks the tree (default: 30 seconds).
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

func newAdapter(cfg Config, options []AdapterOption) *Adapter {
	a := &Adapter{
		config:       cfg,
		basePath:     "/",
		logger:       panefs.DiscardLogger(),
		pollInterval: 30 * time.Second,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// New dials the server and creates an adapter.
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	a := newAdapter(cfg, options)
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewFromClient wraps an established SFTP client. The adapter does not
// reconnect it.
func NewFromClient(client *sftp.Client, options ...AdapterOption) *Adapter {
	a := newAdapter(Config{}, options)
	a.client = client
	return a
}

// Name implements panefs.FileSystem.
func (a *Adapter) Name() string { return "sftp" }

func (a *Adapter) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if a.config.KnownHostsFile == "" {
		a.logger.Warn("sftp: host key checking disabled", "host", a.config.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(a.config.KnownHostsFile)
}

// connect establishes SSH and SFTP connections
func (a *Adapter) connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectLocked()
}

func (a *Adapter) connectLocked() error {
	hostKeys, err := a.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("failed to load known hosts: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            a.config.Username,
		HostKeyCallback: hostKeys,
		Timeout:         a.config.Timeout,
	}

	if len(a.config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(a.config.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}
	if a.config.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(a.config.Password))
	}
	if len(sshConfig.Auth) == 0 {
		return fmt.Errorf("no authentication method provided")
	}

	port := a.config.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(a.config.Host, strconv.Itoa(port))

	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = sftpClient
	a.logger.Info("sftp: connected", "addr", addr, "user", a.config.Username)
	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}
	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}
	a.logger.Info("sftp: closed", "host", a.config.Host)
	return errors.Join(errs...)
}

// session returns a live client, reconnecting a dropped session.
func (a *Adapter) session(ctx context.Context) (*sftp.Client, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	if a.config.Host == "" {
		return nil, panefs.ErrClosed
	}
	if err := a.connectLocked(); err != nil {
		return nil, err
	}
	return a.client, nil
}

// dropOnConnectionLost forgets the client after the connection died so
// that the next call reconnects.
func (a *Adapter) dropOnConnectionLost(client *sftp.Client, err error) {
	if !errors.Is(err, sftp.ErrSSHFxConnectionLost) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == client {
		a.logger.Warn("sftp: connection lost", "host", a.config.Host, "error", err)
		a.client.Close()
		if a.sshConn != nil {
			a.sshConn.Close()
		}
		a.client, a.sshConn = nil, nil
	}
}

// fullPath maps a path to the server path. Cleaning the rooted path first
// keeps it under basePath.
func (a *Adapter) fullPath(p string) string {
	return path.Join(a.basePath, path.Clean("/"+p))
}

func (a *Adapter) fileInfo(p string, fi os.FileInfo) *panefs.FileInfo {
	info := &panefs.FileInfo{
		Name:    path.Base(p),
		Path:    p,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
		Mode:    fi.Mode().Perm(),
		Attrs:   panefs.AttrSize | panefs.AttrModTime | panefs.AttrMode | panefs.AttrSymlink,
	}
	if fi.IsDir() {
		info.Size = 0
	} else {
		info.ContentType = mime.TypeByExtension(path.Ext(p))
	}
	// SFTP v3 only carries numeric ids.
	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		info.Owner = strconv.FormatUint(uint64(st.UID), 10)
		info.Group = strconv.FormatUint(uint64(st.GID), 10)
		info.Attrs |= panefs.AttrOwner | panefs.AttrGroup
	}
	return info
}

// Stat implements panefs.FileReader. Symlinks report the target's metadata
// with IsSymlink set.
func (a *Adapter) Stat(ctx context.Context, p string) (*panefs.FileInfo, error) {
	p = path.Clean("/" + p)
	c, err := a.session(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "stat", Path: p, Err: err}
	}

	full := a.fullPath(p)
	fi, err := c.Lstat(full)
	if err != nil {
		a.dropOnConnectionLost(c, err)
		return nil, mapSFTPError("stat", p, err)
	}

	isLink := fi.Mode()&os.ModeSymlink != 0
	if isLink {
		if target, err := c.Stat(full); err == nil {
			fi = target
		}
	}
	info := a.fileInfo(p, fi)
	info.IsSymlink = isLink
	return info, nil
}

// List implements panefs.FileReader.
func (a *Adapter) List(ctx context.Context, p string) ([]panefs.FileInfo, error) {
	p = path.Clean("/" + p)
	c, err := a.session(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "list", Path: p, Err: err}
	}

	full := a.fullPath(p)
	fi, err := c.Stat(full)
	if err != nil {
		a.dropOnConnectionLost(c, err)
		return nil, mapSFTPError("list", p, err)
	}
	if !fi.IsDir() {
		return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotDir}
	}

	children, err := c.ReadDir(full)
	if err != nil {
		return nil, mapSFTPError("list", p, err)
	}
	entries := make([]panefs.FileInfo, 0, len(children))
	for _, child := range children {
		info := a.fileInfo(path.Join(p, child.Name()), child)
		info.IsSymlink = child.Mode()&os.ModeSymlink != 0
		entries = append(entries, *info)
	}
	return entries, nil
}

// openRead opens a file for reading and rejects directories.
func (a *Adapter) openRead(ctx context.Context, p string) (*sftp.File, int64, error) {
	c, err := a.session(ctx)
	if err != nil {
		return nil, 0, &panefs.PathError{Op: "open", Path: p, Err: err}
	}

	full := a.fullPath(p)
	fi, err := c.Stat(full)
	if err != nil {
		a.dropOnConnectionLost(c, err)
		return nil, 0, mapSFTPError("open", p, err)
	}
	if fi.IsDir() {
		return nil, 0, &panefs.PathError{Op: "open", Path: p, Err: panefs.ErrIsDir}
	}

	f, err := c.Open(full)
	if err != nil {
		return nil, 0, mapSFTPError("open", p, err)
	}
	return f, fi.Size(), nil
}

// Open implements panefs.FileReader.
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	f, _, err := a.openRead(ctx, path.Clean("/"+p))
	if err != nil {
		return nil, err
	}
	return f, nil
}

type randomFile struct {
	*sftp.File
	size int64
}

func (f *randomFile) Size() int64 { return f.size }

// OpenRandom implements panefs.CanRandomRead.
func (a *Adapter) OpenRandom(ctx context.Context, p string) (panefs.RandomReader, error) {
	f, size, err := a.openRead(ctx, path.Clean("/"+p))
	if err != nil {
		return nil, err
	}
	return &randomFile{File: f, size: size}, nil
}

func (a *Adapter) openWrite(ctx context.Context, op, p string, flags int) (*sftp.File, error) {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil, &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
	}
	c, err := a.session(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: op, Path: p, Err: err}
	}

	full := a.fullPath(p)
	if err := c.MkdirAll(path.Dir(full)); err != nil {
		a.dropOnConnectionLost(c, err)
		return nil, mapSFTPError(op, p, err)
	}
	f, err := c.OpenFile(full, flags)
	if err != nil {
		return nil, mapSFTPError(op, p, err)
	}
	return f, nil
}

// Create implements panefs.FileWriter.
func (a *Adapter) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return a.openWrite(ctx, "create", p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

// Append implements panefs.CanAppend.
func (a *Adapter) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	f, err := a.openWrite(ctx, "append", p, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
	if err != nil {
		return nil, err
	}
	// Servers differ in honouring the append flag; writes go to the
	// handle's offset, so start at the end.
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, mapSFTPError("append", p, err)
	}
	return f, nil
}

// OpenRandomWrite implements panefs.CanRandomWrite.
func (a *Adapter) OpenRandomWrite(ctx context.Context, p string) (panefs.RandomWriter, error) {
	return a.openWrite(ctx, "open", p, os.O_RDWR|os.O_CREATE)
}

// Mkdir implements panefs.FileWriter.
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	p = path.Clean("/" + p)
	c, err := a.session(ctx)
	if err != nil {
		return &panefs.PathError{Op: "mkdir", Path: p, Err: err}
	}
	if err := c.MkdirAll(a.fullPath(p)); err != nil {
		a.dropOnConnectionLost(c, err)
		return mapSFTPError("mkdir", p, err)
	}
	return nil
}

// Delete implements panefs.FileWriter.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	p = path.Clean("/" + p)
	if p == "/" {
		return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotAllowed}
	}
	c, err := a.session(ctx)
	if err != nil {
		return &panefs.PathError{Op: "delete", Path: p, Err: err}
	}

	full := a.fullPath(p)
	fi, err := c.Lstat(full)
	if err != nil {
		a.dropOnConnectionLost(c, err)
		return mapSFTPError("delete", p, err)
	}

	if fi.IsDir() {
		children, err := c.ReadDir(full)
		if err != nil {
			return mapSFTPError("delete", p, err)
		}
		if len(children) > 0 {
			return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotEmpty}
		}
		if err := c.RemoveDirectory(full); err != nil {
			return mapSFTPError("delete", p, err)
		}
		return nil
	}

	if err := c.Remove(full); err != nil {
		return mapSFTPError("delete", p, err)
	}
	return nil
}

// Rename implements panefs.FileWriter.
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	src, dst = path.Clean("/"+src), path.Clean("/"+dst)
	c, err := a.session(ctx)
	if err != nil {
		return &panefs.PathError{Op: "rename", Path: src, Err: err}
	}

	srcFull, dstFull := a.fullPath(src), a.fullPath(dst)
	if _, err := c.Lstat(srcFull); err != nil {
		a.dropOnConnectionLost(c, err)
		return mapSFTPError("rename", src, err)
	}
	if _, err := c.Lstat(dstFull); err == nil {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrExist}
	}
	if err := c.MkdirAll(path.Dir(dstFull)); err != nil {
		return mapSFTPError("rename", dst, err)
	}
	if err := c.Rename(srcFull, dstFull); err != nil {
		return mapSFTPError("rename", src, err)
	}
	return nil
}

// Watch implements panefs.CanWatch by walking the tree on an interval.
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
			return !statesEqual(initial, current)
		},
	}), nil
}

type fileState struct {
	modTime time.Time
	size    int64
}

func (a *Adapter) matchingState(ctx context.Context, g glob.Glob) (map[string]fileState, error) {
	c, err := a.session(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "watch", Path: "/", Err: err}
	}

	state := make(map[string]fileState)
	walker := c.Walk(a.basePath)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Removed while walking.
				continue
			}
			a.dropOnConnectionLost(c, err)
			return nil, mapSFTPError("watch", "/", err)
		}
		fi := walker.Stat()
		if fi.IsDir() {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), a.basePath), "/")
		if g.Match(rel) {
			state[rel] = fileState{modTime: fi.ModTime(), size: fi.Size()}
		}
	}
	return state, nil
}

func statesEqual(a, b map[string]fileState) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || !v.modTime.Equal(w.modTime) || v.size != w.size {
			return false
		}
	}
	return true
}

// mapSFTPError maps SFTP errors to panefs errors
func mapSFTPError(op, p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), hasCode(err, sftp.ErrSSHFxNoSuchFile):
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotExist}
	case errors.Is(err, fs.ErrPermission), hasCode(err, sftp.ErrSSHFxPermissionDenied):
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrPermission}
	case errors.Is(err, fs.ErrExist):
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrExist}
	case hasCode(err, sftp.ErrSSHFxOpUnsupported):
		return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotSupported}
	}
	return &panefs.PathError{Op: op, Path: p, Err: err}
}

// hasCode reports whether err is, or carries the status of, an SFTP error code.
func hasCode(err, code error) bool {
	if errors.Is(err, code) {
		return true
	}
	var status *sftp.StatusError
	return errors.As(err, &status) && error(status.FxCode()) == code
}
