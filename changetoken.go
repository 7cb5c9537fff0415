package panefs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// callbackList is the callback registry shared by the token types.
type callbackList struct {
	mu        sync.RWMutex
	changed   atomic.Bool
	callbacks []func()
}

func (l *callbackList) HasChanged() bool {
	return l.changed.Load()
}

func (l *callbackList) RegisterChangeCallback(callback func()) (unregister func()) {
	l.mu.Lock()
	l.callbacks = append(l.callbacks, callback)
	index := len(l.callbacks) - 1
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Nil out instead of removing so other indexes stay valid
		l.callbacks[index] = nil
	}
}

func (l *callbackList) fire() {
	if l.changed.Swap(true) {
		return
	}

	l.mu.RLock()
	callbacks := make([]func(), len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.mu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb()
		}
	}
}

// CallbackChangeToken is a ChangeToken raised by a backend with native
// change events (local, memory).
type CallbackChangeToken struct {
	callbackList
}

// NewCallbackChangeToken creates a new ChangeToken that supports active callbacks.
func NewCallbackChangeToken() *CallbackChangeToken {
	return &CallbackChangeToken{}
}

func (t *CallbackChangeToken) ActiveChangeCallbacks() bool {
	return true
}

// SignalChange marks the token as changed and invokes all callbacks once.
func (t *CallbackChangeToken) SignalChange() {
	t.fire()
}

// PollingChangeToken is a ChangeToken for backends without native events.
// It runs a goroutine until the change fires, the context passed to
// NewPollingChangeToken is cancelled, or Stop is called.
type PollingChangeToken struct {
	callbackList
	cancel context.CancelFunc
}

// PollingConfig configures a polling change token.
type PollingConfig struct {
	// Interval between polls (default: 5 seconds)
	Interval time.Duration
	// CheckFunc returns true if a change is detected
	CheckFunc func() bool
}

// NewPollingChangeToken creates a ChangeToken that polls for changes.
func NewPollingChangeToken(ctx context.Context, cfg PollingConfig) *PollingChangeToken {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &PollingChangeToken{cancel: cancel}
	go t.poll(ctx, cfg)
	return t
}

func (t *PollingChangeToken) poll(ctx context.Context, cfg PollingConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.CheckFunc != nil && cfg.CheckFunc() {
				t.fire()
				t.cancel()
				return
			}
		}
	}
}

func (t *PollingChangeToken) ActiveChangeCallbacks() bool {
	return true
}

// Stop stops the polling goroutine. It is safe to call Stop multiple times.
func (t *PollingChangeToken) Stop() {
	t.cancel()
}

// CompositeChangeToken combines multiple ChangeTokens into one.
// HasChanged returns true if ANY of the underlying tokens has changed.
type CompositeChangeToken struct {
	tokens []ChangeToken
}

// NewCompositeChangeToken creates a token that combines multiple tokens.
func NewCompositeChangeToken(tokens ...ChangeToken) *CompositeChangeToken {
	return &CompositeChangeToken{tokens: tokens}
}

func (c *CompositeChangeToken) HasChanged() bool {
	for _, t := range c.tokens {
		if t.HasChanged() {
			return true
		}
	}
	return false
}

func (c *CompositeChangeToken) ActiveChangeCallbacks() bool {
	for _, t := range c.tokens {
		if !t.ActiveChangeCallbacks() {
			return false
		}
	}
	return len(c.tokens) > 0
}

func (c *CompositeChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	unregisters := make([]func(), 0, len(c.tokens))
	for _, t := range c.tokens {
		unregisters = append(unregisters, t.RegisterChangeCallback(callback))
	}

	return func() {
		for _, u := range unregisters {
			u()
		}
	}
}

// WatchFile returns a token that fires when f changes. Backends with native
// events are used through CanWatch; for the rest the size and modification
// time are polled at interval.
func WatchFile(ctx context.Context, f File, interval time.Duration) (ChangeToken, error) {
	if w, ok := f.FileSystem().(CanWatch); ok {
		token, err := w.Watch(ctx, f.Location().Path)
		if err == nil || !IsUnsupported(err) {
			return token, err
		}
	}

	before, err := snapshot(ctx, f)
	if err != nil {
		return nil, err
	}

	return NewPollingChangeToken(ctx, PollingConfig{
		Interval: interval,
		CheckFunc: func() bool {
			f.Refresh()
			now, err := snapshot(ctx, f)
			return err == nil && now != before
		},
	}), nil
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func snapshot(ctx context.Context, f File) (fileState, error) {
	info, err := f.Stat(ctx)
	if err != nil {
		if IsNotExist(err) {
			return fileState{}, nil
		}
		return fileState{}, err
	}
	return fileState{exists: true, size: info.Size, modTime: info.ModTime}, nil
}

// OnChange keeps watching: each time a token fires, changeAction runs and a
// new token is requested from tokenProducer. The returned function stops it.
func OnChange(tokenProducer func() (ChangeToken, error), changeAction func()) (cancel func()) {
	ctx, cancelFunc := context.WithCancel(context.Background())

	go func() {
		for {
			token, err := tokenProducer()
			if err != nil {
				return
			}

			done := make(chan struct{})
			var once sync.Once
			unregister := token.RegisterChangeCallback(func() {
				once.Do(func() { close(done) })
			})
			if token.HasChanged() {
				once.Do(func() { close(done) })
			}

			select {
			case <-ctx.Done():
				unregister()
				return
			case <-done:
				unregister()
				changeAction()
			}
		}
	}()

	return cancelFunc
}
