package local

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/gobeaver/panefs"
)

// Watch implements panefs.CanWatch using fsnotify for native file system
// events. pattern is a glob over slash paths relative to the root; the
// directory prefix before the first glob character is watched, recursively
// when the pattern contains "**".
func (a *Adapter) Watch(ctx context.Context, pattern string) (panefs.ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	pattern = strings.TrimPrefix(pattern, "/")
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, &panefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	watchDir, err := a.resolve("watch", watchPrefix(pattern))
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &panefs.PathError{Op: "watch", Path: pattern, Err: err}
	}
	if err := w.Add(watchDir); err != nil {
		w.Close()
		return nil, mapError("watch", pattern, err)
	}

	// fsnotify is not recursive; add every existing subdirectory.
	if strings.Contains(pattern, "**") {
		filepath.WalkDir(watchDir, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() && p != watchDir {
				if err := w.Add(p); err != nil {
					a.logger.Warn("watch: cannot add directory", "path", p, "error", err)
				}
			}
			return nil
		})
	}

	token := panefs.NewCallbackChangeToken()
	go a.watchLoop(ctx, w, g, token)
	return token, nil
}

func (a *Adapter) watchLoop(ctx context.Context, w *fsnotify.Watcher, g glob.Glob, token *panefs.CallbackChangeToken) {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(a.root, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if g.Match(rel) || g.Match(filepath.Base(rel)) {
				token.SignalChange()
				// Tokens are single-use.
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			a.logger.Warn("watch: fsnotify error", "root", a.root, "error", err)
		}
	}
}

// watchPrefix returns the directory part of pattern before any glob syntax.
func watchPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[{")
	if idx < 0 {
		if dir := path.Dir(pattern); dir != "." {
			return dir
		}
		return ""
	}
	prefix := pattern[:idx]
	if slash := strings.LastIndex(prefix, "/"); slash >= 0 {
		return prefix[:slash]
	}
	return ""
}
