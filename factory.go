package panefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Factory creates the FileSystem serving one realm.
type Factory func(ctx context.Context, realm Location, cfg *Config) (FileSystem, error)

// ContainerFactory creates a FileSystem over the entries of a container file.
type ContainerFactory func(ctx context.Context, container File, cfg *Config) (FileSystem, error)

// Registry maps location schemes to backend factories and owns the file
// systems it creates, one per realm. A Registry is an ordinary value; create
// one per application and Close it on shutdown.
type Registry struct {
	cfg    *Config
	logger *slog.Logger

	mu        sync.Mutex
	factories map[string]Factory
	container ContainerFactory
	sessions  map[string]FileSystem

	caching  bool
	cacheTTL time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithConfig sets the configuration passed to factories.
func WithConfig(cfg *Config) RegistryOption {
	return func(r *Registry) {
		r.cfg = cfg
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetadataCache wraps every file system the registry opens in a
// CachingFileSystem with its own MemoryCache.
func WithMetadataCache(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.caching = true
		r.cacheTTL = ttl
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		cfg:       &Config{},
		logger:    DiscardLogger(),
		factories: make(map[string]Factory),
		sessions:  make(map[string]FileSystem),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register registers a factory for a scheme, replacing any previous one.
func (r *Registry) Register(scheme string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[scheme] = factory
}

// RegisterContainer registers the factory used for archive: locations.
func (r *Registry) RegisterContainer(factory ContainerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.container = factory
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	schemes := make([]string, 0, len(r.factories)+1)
	for s := range r.factories {
		schemes = append(schemes, s)
	}
	if r.container != nil {
		schemes = append(schemes, ArchiveScheme)
	}
	sort.Strings(schemes)
	return schemes
}

// Resolve parses raw and returns a File for it.
func (r *Registry) Resolve(ctx context.Context, raw string) (File, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	return r.ResolveLocation(ctx, loc)
}

// ResolveLocation returns a File for loc.
func (r *Registry) ResolveLocation(ctx context.Context, loc Location) (File, error) {
	fsys, err := r.FileSystem(ctx, loc)
	if err != nil {
		return nil, err
	}
	return NewFile(fsys, loc), nil
}

// FileSystem returns the file system for loc's realm, creating it on first use.
func (r *Registry) FileSystem(ctx context.Context, loc Location) (FileSystem, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	key := loc.RealmKey()

	r.mu.Lock()
	if fsys, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return fsys, nil
	}
	factory := r.factories[loc.Scheme]
	container := r.container
	r.mu.Unlock()

	var (
		fsys FileSystem
		err  error
	)
	switch {
	case loc.Scheme == ArchiveScheme && container != nil:
		var outer File
		outer, err = r.Resolve(ctx, loc.Container)
		if err == nil {
			fsys, err = container(ctx, outer, r.cfg)
		}
	case factory != nil:
		fsys, err = factory(ctx, loc.Realm(), r.cfg)
	default:
		return nil, fmt.Errorf("scheme %q not registered", loc.Scheme)
	}
	if err != nil {
		return nil, &PathError{Op: "connect", Path: loc.Realm().Redacted(), Err: err}
	}
	if r.caching {
		fsys = NewCachingFileSystem(fsys, NewMemoryCache(), r.cacheTTL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[key]; ok {
		// Lost a race with another resolver; keep the first session.
		closeSession(fsys)
		return existing, nil
	}
	r.sessions[key] = fsys
	r.logger.Info("opened file system", "realm", loc.Realm().Redacted(), "backend", fsys.Name())
	return fsys, nil
}

// Close releases every session the registry created.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]FileSystem)
	r.mu.Unlock()

	var errs []error
	for key, fsys := range sessions {
		if err := closeSession(fsys); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Release closes the session behind fsys and forgets it, so the next
// resolve of its realm connects again.
func (r *Registry) Release(fsys FileSystem) error {
	r.mu.Lock()
	for key, cached := range r.sessions {
		if cached == fsys {
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()
	return closeSession(fsys)
}

func closeSession(fsys FileSystem) error {
	if c, ok := fsys.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
