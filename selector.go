package panefs

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
)

// ============================================================================
// FileSelector Interface
// ============================================================================

// FileSelector filters files during a walk. Selectors compose with And, Or
// and Not.
//
//	selector := panefs.And(
//	    panefs.Glob("*.jpg"),
//	    panefs.FuncSelector(func(f *panefs.FileInfo) bool {
//	        return f.Size < 10*1024*1024
//	    }),
//	)
//	files, err := panefs.FindFiles(ctx, dir, selector, true)
type FileSelector interface {
	// Match returns true if the file should be included in results.
	Match(file *FileInfo) bool

	// TraverseDescendants returns true if directory descendants should be traversed.
	// Only called for directories (file.IsDir == true).
	TraverseDescendants(file *FileInfo) bool
}

// FindFiles returns the files below dir that the selector matches.
// Directories are descended only when recursive is set and the selector
// allows it.
func FindFiles(ctx context.Context, dir File, selector FileSelector, recursive bool) ([]File, error) {
	if selector == nil {
		selector = All()
	}

	var results []File
	err := Walk(ctx, dir, func(f File, info *FileInfo) (bool, error) {
		if info.IsDir {
			return recursive && selector.TraverseDescendants(info), nil
		}
		if selector.Match(info) {
			results = append(results, f)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// WalkFunc is called for every child during Walk. For directories, the
// returned bool decides whether Walk descends into it.
type WalkFunc func(f File, info *FileInfo) (descend bool, err error)

// Walk visits the children of dir depth-first.
func Walk(ctx context.Context, dir File, fn WalkFunc) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	children, err := dir.List(ctx)
	if err != nil {
		return err
	}

	for _, child := range children {
		info, err := child.Stat(ctx)
		if err != nil {
			return err
		}
		descend, err := fn(child, info)
		if err != nil {
			return err
		}
		if info.IsDir && descend {
			if err := Walk(ctx, child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// ============================================================================
// Built-in Selectors
// ============================================================================

// AllSelector matches all files and traverses all directories.
type AllSelector struct{}

func (s AllSelector) Match(file *FileInfo) bool               { return true }
func (s AllSelector) TraverseDescendants(file *FileInfo) bool { return true }

// All returns a selector that matches all files.
func All() FileSelector {
	return AllSelector{}
}

type globSelector struct {
	g        glob.Glob
	fullPath bool
}

// Glob creates a selector matching file names against a glob pattern.
// Supports *, ?, [abc], [a-z] and {a,b}. A pattern containing "/" is
// matched against the full path instead, with ** crossing directories.
//
//	Glob("*.txt")         // All .txt files
//	Glob("{*.jpg,*.png}") // Images
//	Glob("/logs/**.gz")   // Compressed files anywhere under /logs
//
// An invalid pattern matches nothing.
func Glob(pattern string) FileSelector {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return FuncSelector(func(*FileInfo) bool { return false })
	}
	return &globSelector{g: g, fullPath: strings.Contains(pattern, "/")}
}

func (s *globSelector) Match(file *FileInfo) bool {
	if s.fullPath {
		return s.g.Match(file.Path)
	}
	return s.g.Match(file.Name)
}

func (s *globSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

type depthSelector struct {
	maxDepth int
	basePath string
}

// Depth limits traversal to maxDepth levels below basePath.
// Depth 1 = immediate children only.
func Depth(maxDepth int, basePath string) FileSelector {
	return &depthSelector{
		maxDepth: maxDepth,
		basePath: strings.TrimSuffix(basePath, "/"),
	}
}

func (s *depthSelector) getDepth(path string) int {
	rel := strings.TrimPrefix(path, s.basePath)
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func (s *depthSelector) Match(file *FileInfo) bool {
	return s.getDepth(file.Path) <= s.maxDepth
}

func (s *depthSelector) TraverseDescendants(file *FileInfo) bool {
	return s.getDepth(file.Path) < s.maxDepth
}

// ============================================================================
// Composable Selectors (And, Or, Not)
// ============================================================================

type andSelector struct {
	selectors []FileSelector
}

// And matches only if ALL selectors match. It descends only where every
// selector allows it.
func And(selectors ...FileSelector) FileSelector {
	return &andSelector{selectors: selectors}
}

func (s *andSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.Match(file) {
			return false
		}
	}
	return true
}

func (s *andSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.TraverseDescendants(file) {
			return false
		}
	}
	return true
}

type orSelector struct {
	selectors []FileSelector
}

// Or matches if ANY selector matches.
func Or(selectors ...FileSelector) FileSelector {
	return &orSelector{selectors: selectors}
}

func (s *orSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.Match(file) {
			return true
		}
	}
	return false
}

func (s *orSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.TraverseDescendants(file) {
			return true
		}
	}
	return false
}

type notSelector struct {
	selector FileSelector
}

// Not inverts a selector's match result.
func Not(selector FileSelector) FileSelector {
	return &notSelector{selector: selector}
}

func (s *notSelector) Match(file *FileInfo) bool {
	return !s.selector.Match(file)
}

func (s *notSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

type funcSelector struct {
	matchFn    func(*FileInfo) bool
	traverseFn func(*FileInfo) bool
}

// FuncSelector creates a selector from a custom function.
func FuncSelector(fn func(*FileInfo) bool) FileSelector {
	return &funcSelector{
		matchFn:    fn,
		traverseFn: func(*FileInfo) bool { return true },
	}
}

// FuncSelectorFull creates a selector with custom match and traverse functions.
func FuncSelectorFull(matchFn, traverseFn func(*FileInfo) bool) FileSelector {
	return &funcSelector{
		matchFn:    matchFn,
		traverseFn: traverseFn,
	}
}

func (s *funcSelector) Match(file *FileInfo) bool               { return s.matchFn(file) }
func (s *funcSelector) TraverseDescendants(file *FileInfo) bool { return s.traverseFn(file) }
