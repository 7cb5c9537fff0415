package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
)

var statCmd = &cobra.Command{
	Use:   "stat <location>",
	Short: "Show file metadata",
	Long: `Show the metadata of a file or directory. Attributes that the backend
does not provide are reported as unsupported rather than guessed.`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := resolve(cmd, args[0])
	if err != nil {
		return err
	}
	info, err := f.Stat(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	kind := "file"
	switch {
	case info.IsDir:
		kind = "directory"
	case info.IsSymlink:
		kind = "symlink"
	}
	fmt.Fprintf(out, "Location:     %s\n", f.Location().Redacted())
	fmt.Fprintf(out, "Backend:      %s\n", f.FileSystem().Name())
	fmt.Fprintf(out, "Type:         %s\n", kind)

	size, err := f.Size(ctx)
	field(out, "Size", fmt.Sprint(size), err)
	modTime, err := f.ModTime(ctx)
	field(out, "Modified", formatTime(modTime), err)
	mode, err := f.Permissions(ctx)
	field(out, "Permissions", mode.String(), err)
	owner, err := f.Owner(ctx)
	field(out, "Owner", owner, err)
	group, err := f.Group(ctx)
	field(out, "Group", group, err)

	if !info.IsDir {
		contentType, err := panefs.SniffContentType(ctx, f)
		field(out, "Content-Type", contentType, err)
	}
	return nil
}

// field prints one attribute, or the reason it is missing.
func field(w io.Writer, name, value string, err error) {
	if err != nil {
		if op, ok := panefs.UnsupportedOp(err); ok {
			value = fmt.Sprintf("unsupported (%s)", op)
		} else {
			value = "error: " + err.Error()
		}
	}
	fmt.Fprintf(w, "%-13s %s\n", name+":", value)
}
