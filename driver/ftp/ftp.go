// Package ftp provides a panefs.FileSystem over an FTP server.
//
// FTP transfers whole files: there is no random access, no permission or
// ownership reporting and no server-side copy. Those capabilities are not
// implemented, so the corresponding panefs.File operations report
// Unsupported.
package ftp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/jlaffaye/ftp"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/internal/objstore"
)

// Conn is the subset of an FTP control connection the adapter uses.
type Conn interface {
	List(path string) ([]*ftp.Entry, error)
	GetEntry(path string) (*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	Append(path string, r io.Reader) error
	MakeDir(path string) error
	Delete(path string) error
	RemoveDir(path string) error
	Rename(from, to string) error
	Quit() error
}

// serverConn adapts *ftp.ServerConn to Conn.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(p string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(p)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Config holds FTP connection configuration.
type Config struct {
	Host     string
	Port     int
	Username string // defaults to "anonymous"
	Password string
	Timeout  time.Duration

	// TLSConfig enables explicit TLS (AUTH TLS) when set.
	TLSConfig *tls.Config
}

// Adapter provides an FTP implementation of panefs.FileSystem.
//
// A control connection runs one command at a time. Readers returned by
// Open hold the connection until they are closed.
type Adapter struct {
	mu       sync.Mutex
	conn     Conn
	config   Config
	basePath string
	logger   *slog.Logger

	pollInterval time.Duration
}

// AdapterOption is a function that configures the FTP Adapter.
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

// WithPollInterval sets how often Watch lists the tree (default: 30 seconds).
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

// New dials and logs in to the server.
func New(ctx context.Context, cfg Config, options ...AdapterOption) (*Adapter, error) {
	a := newAdapter(cfg, options)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.connectLocked(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// NewFromConn wraps a logged-in connection. The adapter does not
// reconnect it.
func NewFromConn(conn *ftp.ServerConn, options ...AdapterOption) *Adapter {
	return newFromConn(serverConn{conn}, options)
}

func newFromConn(conn Conn, options []AdapterOption) *Adapter {
	a := newAdapter(Config{}, options)
	a.conn = conn
	return a
}

// Name implements panefs.FileSystem.
func (a *Adapter) Name() string { return "ftp" }

func (a *Adapter) connectLocked(ctx context.Context) error {
	port := a.config.Port
	if port == 0 {
		port = 21
	}
	addr := net.JoinHostPort(a.config.Host, strconv.Itoa(port))

	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if a.config.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(a.config.Timeout))
	}
	if a.config.TLSConfig != nil {
		opts = append(opts, ftp.DialWithExplicitTLS(a.config.TLSConfig))
	}

	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to FTP server: %w", err)
	}

	user, pass := a.config.Username, a.config.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := c.Login(user, pass); err != nil {
		c.Quit()
		return mapFTPError("login", "/", err)
	}

	a.conn = serverConn{c}
	a.logger.Info("ftp: connected", "addr", addr, "user", user)
	return nil
}

// Close ends the session.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Quit()
	a.conn = nil
	a.logger.Info("ftp: closed", "host", a.config.Host)
	return err
}

// lock acquires the connection, dialing again if the session was dropped.
// The caller must call a.mu.Unlock.
func (a *Adapter) lock(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	a.mu.Lock()
	if a.conn != nil {
		return a.conn, nil
	}
	if a.config.Host == "" {
		a.mu.Unlock()
		return nil, panefs.ErrClosed
	}
	if err := a.connectLocked(ctx); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	return a.conn, nil
}

// dropLocked forgets the connection after a transport failure so that the
// next call dials again. Protocol replies leave the session intact.
func (a *Adapter) dropLocked(err error) {
	var reply *textproto.Error
	if err == nil || errors.As(err, &reply) || a.config.Host == "" {
		return
	}
	a.logger.Warn("ftp: connection lost", "host", a.config.Host, "error", err)
	a.conn.Quit()
	a.conn = nil
}

func (a *Adapter) fullPath(p string) string {
	return path.Join(a.basePath, path.Clean("/"+p))
}

func entryInfo(p string, e *ftp.Entry) *panefs.FileInfo {
	info := &panefs.FileInfo{
		Name:      path.Base(p),
		Path:      p,
		IsDir:     e.Type == ftp.EntryTypeFolder,
		IsSymlink: e.Type == ftp.EntryTypeLink,
		ModTime:   e.Time,
		Attrs:     panefs.AttrSize | panefs.AttrSymlink,
	}
	if !e.Time.IsZero() {
		info.Attrs |= panefs.AttrModTime
	}
	if !info.IsDir {
		info.Size = int64(e.Size)
		info.ContentType = mime.TypeByExtension(path.Ext(p))
	}
	return info
}

func rootInfo() *panefs.FileInfo {
	return &panefs.FileInfo{Name: "/", Path: "/", IsDir: true, Attrs: panefs.AttrSize | panefs.AttrSymlink}
}

// statLocked uses MLST when the server has it and falls back to listing the
// parent directory.
func (a *Adapter) statLocked(c Conn, op, p string) (*panefs.FileInfo, error) {
	if p == "/" {
		return rootInfo(), nil
	}
	full := a.fullPath(p)

	entry, err := c.GetEntry(full)
	if err == nil {
		return entryInfo(p, entry), nil
	}
	if !isNotImplemented(err) {
		a.dropLocked(err)
		return nil, mapFTPError(op, p, err)
	}

	entries, err := c.List(path.Dir(full))
	if err != nil {
		a.dropLocked(err)
		return nil, mapFTPError(op, p, err)
	}
	name := path.Base(full)
	for _, e := range entries {
		if e.Name == name {
			return entryInfo(p, e), nil
		}
	}
	return nil, &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotExist}
}

// Stat implements panefs.FileReader.
func (a *Adapter) Stat(ctx context.Context, p string) (*panefs.FileInfo, error) {
	p = path.Clean("/" + p)
	c, err := a.lock(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "stat", Path: p, Err: err}
	}
	defer a.mu.Unlock()
	return a.statLocked(c, "stat", p)
}

// List implements panefs.FileReader.
func (a *Adapter) List(ctx context.Context, p string) ([]panefs.FileInfo, error) {
	p = path.Clean("/" + p)
	c, err := a.lock(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "list", Path: p, Err: err}
	}
	defer a.mu.Unlock()
	return a.listLocked(c, p)
}

func (a *Adapter) listLocked(c Conn, p string) ([]panefs.FileInfo, error) {
	info, err := a.statLocked(c, "list", p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir {
		return nil, &panefs.PathError{Op: "list", Path: p, Err: panefs.ErrNotDir}
	}

	children, err := c.List(a.fullPath(p))
	if err != nil {
		a.dropLocked(err)
		return nil, mapFTPError("list", p, err)
	}
	entries := make([]panefs.FileInfo, 0, len(children))
	for _, e := range children {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entries = append(entries, *entryInfo(path.Join(p, e.Name), e))
	}
	return entries, nil
}

// lockedReader releases the connection when the transfer is closed.
type lockedReader struct {
	io.ReadCloser
	once   sync.Once
	unlock func()
}

func (r *lockedReader) Close() error {
	err := r.ReadCloser.Close()
	r.once.Do(r.unlock)
	return err
}

// Open implements panefs.FileReader.
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	p = path.Clean("/" + p)
	c, err := a.lock(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "open", Path: p, Err: err}
	}

	info, err := a.statLocked(c, "open", p)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if info.IsDir {
		a.mu.Unlock()
		return nil, &panefs.PathError{Op: "open", Path: p, Err: panefs.ErrIsDir}
	}

	rc, err := c.Retr(a.fullPath(p))
	if err != nil {
		a.dropLocked(err)
		a.mu.Unlock()
		return nil, mapFTPError("open", p, err)
	}
	return &lockedReader{ReadCloser: rc, unlock: a.mu.Unlock}, nil
}

// mkdirAllLocked creates p and its missing parents.
func (a *Adapter) mkdirAllLocked(c Conn, op, p string) error {
	if p == "/" {
		return nil
	}
	info, err := a.statLocked(c, op, p)
	if err == nil {
		if !info.IsDir {
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotDir}
		}
		return nil
	}
	if !panefs.IsNotExist(err) {
		return err
	}
	if err := a.mkdirAllLocked(c, op, path.Dir(p)); err != nil {
		return err
	}
	if err := c.MakeDir(a.fullPath(p)); err != nil {
		a.dropLocked(err)
		return mapFTPError(op, p, err)
	}
	return nil
}

// store returns a writer that uploads on Close through send.
func (a *Adapter) store(ctx context.Context, op, p string, send func(c Conn, full string, r io.Reader) error) (io.WriteCloser, error) {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil, &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
	}

	c, err := a.lock(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: op, Path: p, Err: err}
	}
	defer a.mu.Unlock()

	if info, err := a.statLocked(c, op, p); err == nil && info.IsDir {
		return nil, &panefs.PathError{Op: op, Path: p, Err: panefs.ErrIsDir}
	}
	if err := a.mkdirAllLocked(c, op, path.Dir(p)); err != nil {
		return nil, err
	}

	return objstore.NewWriter(func(data []byte) error {
		c, err := a.lock(context.WithoutCancel(ctx))
		if err != nil {
			return &panefs.PathError{Op: op, Path: p, Err: err}
		}
		defer a.mu.Unlock()
		if err := send(c, a.fullPath(p), bytes.NewReader(data)); err != nil {
			a.dropLocked(err)
			return mapFTPError(op, p, err)
		}
		return nil
	}), nil
}

// Create implements panefs.FileWriter. Content is uploaded on Close.
func (a *Adapter) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return a.store(ctx, "create", p, func(c Conn, full string, r io.Reader) error {
		return c.Stor(full, r)
	})
}

// Append implements panefs.CanAppend with the APPE command.
func (a *Adapter) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	return a.store(ctx, "append", p, func(c Conn, full string, r io.Reader) error {
		return c.Append(full, r)
	})
}

// Mkdir implements panefs.FileWriter.
func (a *Adapter) Mkdir(ctx context.Context, p string) error {
	p = path.Clean("/" + p)
	c, err := a.lock(ctx)
	if err != nil {
		return &panefs.PathError{Op: "mkdir", Path: p, Err: err}
	}
	defer a.mu.Unlock()
	return a.mkdirAllLocked(c, "mkdir", p)
}

// Delete implements panefs.FileWriter.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	p = path.Clean("/" + p)
	if p == "/" {
		return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotAllowed}
	}
	c, err := a.lock(ctx)
	if err != nil {
		return &panefs.PathError{Op: "delete", Path: p, Err: err}
	}
	defer a.mu.Unlock()

	info, err := a.statLocked(c, "delete", p)
	if err != nil {
		return err
	}

	full := a.fullPath(p)
	if info.IsDir {
		children, err := a.listLocked(c, p)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return &panefs.PathError{Op: "delete", Path: p, Err: panefs.ErrNotEmpty}
		}
		err = c.RemoveDir(full)
		a.dropLocked(err)
		if err != nil {
			return mapFTPError("delete", p, err)
		}
		return nil
	}

	if err := c.Delete(full); err != nil {
		a.dropLocked(err)
		return mapFTPError("delete", p, err)
	}
	return nil
}

// Rename implements panefs.FileWriter with RNFR/RNTO.
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	src, dst = path.Clean("/"+src), path.Clean("/"+dst)
	c, err := a.lock(ctx)
	if err != nil {
		return &panefs.PathError{Op: "rename", Path: src, Err: err}
	}
	defer a.mu.Unlock()

	if _, err := a.statLocked(c, "rename", src); err != nil {
		return err
	}
	if _, err := a.statLocked(c, "rename", dst); err == nil {
		return &panefs.PathError{Op: "rename", Path: dst, Err: panefs.ErrExist}
	}
	if err := a.mkdirAllLocked(c, "rename", path.Dir(dst)); err != nil {
		return err
	}
	if err := c.Rename(a.fullPath(src), a.fullPath(dst)); err != nil {
		a.dropLocked(err)
		return mapFTPError("rename", src, err)
	}
	return nil
}

// Watch implements panefs.CanWatch by listing the tree on an interval.
func (a *Adapter) Watch(ctx context.Context, pattern string) (panefs.ChangeToken, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, &panefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	initial, err := a.snapshot(ctx, g)
	if err != nil {
		return nil, err
	}

	return panefs.NewPollingChangeToken(ctx, panefs.PollingConfig{
		Interval: a.pollInterval,
		CheckFunc: func() bool {
			current, err := a.snapshot(ctx, g)
			if err != nil {
				return false
			}
			return !initial.Equal(current)
		},
	}), nil
}

func (a *Adapter) snapshot(ctx context.Context, g glob.Glob) (objstore.Snapshot, error) {
	c, err := a.lock(ctx)
	if err != nil {
		return nil, &panefs.PathError{Op: "watch", Path: "/", Err: err}
	}
	defer a.mu.Unlock()

	state := make(objstore.Snapshot)
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := a.listLocked(c, dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir {
				if err := walk(e.Path); err != nil && !panefs.IsNotExist(err) {
					return err
				}
				continue
			}
			rel := strings.TrimPrefix(e.Path, "/")
			if g.Match(rel) {
				state[rel] = objstore.ObjectState{ModTime: e.ModTime, Size: e.Size}
			}
		}
		return nil
	}
	if err := walk("/"); err != nil {
		return nil, err
	}
	return state, nil
}

func isNotImplemented(err error) bool {
	var reply *textproto.Error
	if !errors.As(err, &reply) {
		return false
	}
	switch reply.Code {
	case ftp.StatusNotImplemented, ftp.StatusCommandNotImplemented, ftp.StatusNotImplementedParameter, ftp.StatusBadCommand:
		return true
	}
	return false
}

// mapFTPError maps FTP replies to panefs errors. Servers answer 550 for
// most refusals; it is read as a missing path.
func mapFTPError(op, p string, err error) error {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		switch {
		case reply.Code == ftp.StatusFileUnavailable:
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotExist}
		case reply.Code == ftp.StatusNotLoggedIn:
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrPermission}
		case reply.Code == ftp.StatusBadFileName:
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrInvalidName}
		case reply.Code == ftp.StatusExceededStorage:
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNoSpace}
		case isNotImplemented(err):
			return &panefs.PathError{Op: op, Path: p, Err: panefs.ErrNotSupported}
		}
	}
	return &panefs.PathError{Op: op, Path: p, Err: err}
}
