package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs/archive"
)

var entriesFormat string

var entriesCmd = &cobra.Command{
	Use:   "entries <container>",
	Short: "Stream the entries of an archive",
	Long: `Print the entries of a zip, tar (plain, gz, bz2, zst, xz), rar or 7z
container, or of an lst listing, as they are read. Unlike "ls archive:...",
nothing is indexed first, so the output starts at once on large archives.`,
	Args: cobra.ExactArgs(1),
	RunE: runEntries,
}

func init() {
	entriesCmd.Flags().StringVar(&entriesFormat, "format", "", "container format (default: detect from name and content)")
	rootCmd.AddCommand(entriesCmd)
}

func runEntries(cmd *cobra.Command, args []string) error {
	f, err := resolve(cmd, args[0])
	if err != nil {
		return err
	}

	var opts []archive.OpenOption
	if config.ArchivePassword != "" {
		opts = append(opts, archive.WithPassword(config.ArchivePassword))
	}
	if entriesFormat != "" {
		format, err := archive.ParseFormat(entriesFormat)
		if err != nil {
			return err
		}
		opts = append(opts, archive.WithFormat(format))
	}

	r, err := archive.Open(cmd.Context(), f, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	out := cmd.OutOrStdout()
	for {
		e, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		mode := "?"
		if e.HasAttrs {
			mode = e.Mode.String()
		}
		size := fmt.Sprint(e.Size)
		if e.IsDir {
			size = "-"
		}
		modTime := "?"
		if !e.ModTime.IsZero() {
			modTime = e.ModTime.Local().Format(timeLayout)
		}
		fmt.Fprintf(out, "%-11s %10s %16s %s\n", mode, size, modTime, e.Path)
	}
}
