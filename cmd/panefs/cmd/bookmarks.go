package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Bookmarks maps short names to location URLs. A location "@name/rest" is
// expanded to the bookmark joined with rest.
type Bookmarks struct {
	Bookmarks map[string]string `yaml:"bookmarks"`
}

// LoadBookmarks reads a bookmarks file. A missing file yields no bookmarks.
func LoadBookmarks(path string) (Bookmarks, error) {
	var b Bookmarks
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("read bookmarks: %w", err)
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("parse bookmarks %s: %w", path, err)
	}
	return b, nil
}

// Save writes the bookmarks to path. The file may hold credentials and is
// created with mode 0600.
func (b Bookmarks) Save(path string) error {
	if path == "" {
		return errors.New("no bookmarks file configured")
	}
	data, err := yaml.Marshal(b)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Expand replaces a leading @name with its bookmark. Other locations are
// returned unchanged.
func (b Bookmarks) Expand(raw string) (string, error) {
	rest, ok := strings.CutPrefix(raw, "@")
	if !ok {
		return raw, nil
	}
	name, tail, _ := strings.Cut(rest, "/")
	target, ok := b.Bookmarks[name]
	if !ok {
		return "", fmt.Errorf("unknown bookmark @%s", name)
	}
	if tail == "" {
		return target, nil
	}
	return strings.TrimSuffix(target, "/") + "/" + tail, nil
}

// Names returns the bookmark names in order.
func (b Bookmarks) Names() []string {
	names := make([]string, 0, len(b.Bookmarks))
	for name := range b.Bookmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage @name bookmarks",
}

var bookmarkAddCmd = &cobra.Command{
	Use:   "add <name> <location>",
	Short: "Add or replace a bookmark",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimPrefix(args[0], "@")
		if name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("invalid bookmark name %q", args[0])
		}
		if bookmarks.Bookmarks == nil {
			bookmarks.Bookmarks = make(map[string]string)
		}
		bookmarks.Bookmarks[name] = args[1]
		return bookmarks.Save(bookmarksFile)
	},
}

var bookmarkRemoveCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimPrefix(args[0], "@")
		if _, ok := bookmarks.Bookmarks[name]; !ok {
			return fmt.Errorf("unknown bookmark @%s", name)
		}
		delete(bookmarks.Bookmarks, name)
		return bookmarks.Save(bookmarksFile)
	},
}

var bookmarkListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List bookmarks",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, name := range bookmarks.Names() {
			fmt.Fprintf(out, "@%s\t%s\n", name, bookmarks.Bookmarks[name])
		}
	},
}

func init() {
	bookmarkCmd.AddCommand(bookmarkAddCmd, bookmarkRemoveCmd, bookmarkListCmd)
	rootCmd.AddCommand(bookmarkCmd)
}
