package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
)

var (
	lsLong      bool
	lsRecursive bool
	lsPattern   string
)

var lsCmd = &cobra.Command{
	Use:   "ls <location>",
	Short: "List a directory",
	Long: `List the children of a directory.

Examples:
  panefs ls -l sftp://me@host/var/log
  panefs ls -R --glob '*.gz' s3://backups/
  panefs ls 'archive:/tmp/site.zip!/'`,
	Args: cobra.ExactArgs(1),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "show mode, owner, size and time")
	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "R", false, "descend into directories")
	lsCmd.Flags().StringVar(&lsPattern, "glob", "", "only show files matching this pattern")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	dir, err := resolve(cmd, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	root := dir.Location().Path

	show := func(info *panefs.FileInfo) {
		name := info.Name
		if lsRecursive {
			name = strings.TrimPrefix(strings.TrimPrefix(info.Path, root), "/")
		}
		if lsLong {
			fmt.Fprintln(out, longLine(info, name))
			return
		}
		if info.IsDir {
			name += "/"
		}
		fmt.Fprintln(out, name)
	}

	if lsPattern != "" {
		files, err := panefs.FindFiles(cmd.Context(), dir, panefs.Glob(lsPattern), lsRecursive)
		if err != nil {
			return err
		}
		for _, f := range files {
			info, err := f.Stat(cmd.Context())
			if err != nil {
				return err
			}
			show(info)
		}
		return nil
	}

	return panefs.Walk(cmd.Context(), dir, func(f panefs.File, info *panefs.FileInfo) (bool, error) {
		show(info)
		return lsRecursive, nil
	})
}
