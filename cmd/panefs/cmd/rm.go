package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
)

var rmRecursive bool

var rmCmd = &cobra.Command{
	Use:   "rm <location>...",
	Short: "Delete files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			f, err := resolve(cmd, arg)
			if err != nil {
				return err
			}
			if rmRecursive {
				err = panefs.DeleteAll(cmd.Context(), f)
			} else {
				err = f.Delete(cmd.Context())
			}
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <location>...",
	Short: "Create directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			f, err := resolve(cmd, arg)
			if err != nil {
				return err
			}
			if err := f.Mkdir(cmd.Context()); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rmCmd.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "delete directories and their content")
	rootCmd.AddCommand(rmCmd, mkdirCmd)
}
