package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
)

var cpCmd = &cobra.Command{
	Use:   "cp <source> <destination>",
	Short: "Copy a file or directory",
	Long: `Copy a file or directory tree, across backends if needed. Copies within
one realm use the backend's server-side copy when it has one. When the
destination is an existing directory the source is copied into it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transfer(cmd, args, panefs.Copy)
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move a file or directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transfer(cmd, args, panefs.Move)
	},
}

func init() {
	rootCmd.AddCommand(cpCmd, mvCmd)
}

func transfer(cmd *cobra.Command, args []string, op func(ctx context.Context, src, dst panefs.File) error) error {
	ctx := cmd.Context()
	src, err := resolve(cmd, args[0])
	if err != nil {
		return err
	}
	dst, err := resolve(cmd, args[1])
	if err != nil {
		return err
	}

	isDir, err := dst.IsDir(ctx)
	if err != nil && !panefs.IsNotExist(err) {
		return err
	}
	if isDir {
		if dst, err = panefs.Child(dst, src.Name()); err != nil {
			return err
		}
	}
	return op(ctx, src, dst)
}
