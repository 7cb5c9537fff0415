package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/driver/archivefs"
	"github.com/gobeaver/panefs/driver/azure"
	"github.com/gobeaver/panefs/driver/ftp"
	"github.com/gobeaver/panefs/driver/gcs"
	"github.com/gobeaver/panefs/driver/local"
	"github.com/gobeaver/panefs/driver/memory"
	"github.com/gobeaver/panefs/driver/s3"
	"github.com/gobeaver/panefs/driver/sftp"
)

var (
	envPrefix     string
	bookmarksFile string
	cacheTTL      time.Duration
)

// drivers are registered on every registry the CLI builds.
var drivers = []panefs.Driver{
	local.Register,
	memory.Register,
	func(r *panefs.Registry) { sftp.Register(r) },
	func(r *panefs.Registry) { ftp.Register(r) },
	s3.Register,
	gcs.Register,
	azure.Register,
	func(r *panefs.Registry) { archivefs.Register(r) },
}

// Per-invocation state, set up in PersistentPreRunE.
var (
	registry  *panefs.Registry
	config    *panefs.Config
	bookmarks Bookmarks
)

var rootCmd = &cobra.Command{
	Use:   "panefs",
	Short: "Browse, search and copy files on local, remote and archive file systems",
	Long: `panefs works with files through location URLs:

  /var/log/syslog                     local path
  sftp://user@host/home/user/notes    SFTP
  ftp://host/pub/readme.txt           FTP (ftps:// for explicit TLS)
  s3://bucket/key, gs://bucket/key    object storage
  azblob://container/blob             Azure Blob Storage
  archive:/tmp/x.zip!/dir/entry       entries inside zip, tar, rar, 7z

A location starting with @ is expanded from the bookmarks file.

Configuration is read from PANEFS_* environment variables, with the
prefix given by --env-prefix.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", "", "prefix of the PANEFS_* environment variables")
	rootCmd.PersistentFlags().StringVar(&bookmarksFile, "bookmarks", defaultBookmarksFile(), "YAML file of @name bookmarks")
	rootCmd.PersistentFlags().DurationVar(&cacheTTL, "cache-ttl", 0, "cache metadata for this long (0 disables)")
}

func setup(cmd *cobra.Command, args []string) error {
	// A failed command skips PersistentPostRunE.
	if err := teardown(cmd, args); err != nil {
		return err
	}

	var err error
	bookmarks, err = LoadBookmarks(bookmarksFile)
	if err != nil {
		return err
	}

	b := panefs.WithEnvPrefix(envPrefix).LogTo(cmd.ErrOrStderr())
	if cacheTTL > 0 {
		b = b.With(panefs.WithMetadataCache(cacheTTL))
	}
	registry, config, err = b.New(drivers...)
	return err
}

func teardown(cmd *cobra.Command, args []string) error {
	if registry == nil {
		return nil
	}
	err := registry.Close()
	registry = nil
	return err
}

// resolve expands bookmarks and relative local paths and resolves the
// result against the registry.
func resolve(cmd *cobra.Command, raw string) (panefs.File, error) {
	expanded, err := expand(raw)
	if err != nil {
		return nil, err
	}
	f, err := registry.Resolve(cmd.Context(), expanded)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", raw, err)
	}
	return f, nil
}

func expand(raw string) (string, error) {
	expanded, err := bookmarks.Expand(raw)
	if err != nil {
		return "", err
	}
	if rest, ok := strings.CutPrefix(expanded, panefs.ArchiveScheme+":"); ok {
		container, inner, found := strings.Cut(rest, "!")
		if !found {
			return expanded, nil
		}
		if container, err = expand(container); err != nil {
			return "", err
		}
		return panefs.ArchiveScheme + ":" + container + "!" + inner, nil
	}
	if isRelativeLocal(expanded) {
		return filepath.Abs(expanded)
	}
	return expanded, nil
}

func isRelativeLocal(raw string) bool {
	return !strings.Contains(raw, "://") && !filepath.IsAbs(raw)
}

func defaultBookmarksFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "panefs", "bookmarks.yaml")
}
