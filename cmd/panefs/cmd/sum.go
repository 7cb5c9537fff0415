package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
)

var sumAlgorithms []string

var sumCmd = &cobra.Command{
	Use:   "sum <location>...",
	Short: "Print checksums",
	Long: `Print checksums of files. For a single algorithm, backends that compute
checksums server-side are asked first. Several algorithms are computed
in one read of the content.

Algorithms: md5, sha1, sha256, sha512, crc32, xxhash.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSum,
}

func init() {
	sumCmd.Flags().StringSliceVarP(&sumAlgorithms, "algorithm", "a", []string{"sha256"}, "checksum algorithms")
	rootCmd.AddCommand(sumCmd)
}

func runSum(cmd *cobra.Command, args []string) error {
	algorithms := make([]panefs.ChecksumAlgorithm, len(sumAlgorithms))
	for i, name := range sumAlgorithms {
		algorithms[i] = panefs.ChecksumAlgorithm(name)
		if _, err := panefs.NewHasher(algorithms[i]); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for _, arg := range args {
		f, err := resolve(cmd, arg)
		if err != nil {
			return err
		}
		if len(algorithms) == 1 {
			sum, err := panefs.Checksum(cmd.Context(), f, algorithms[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s  %s\n", sum, arg)
			continue
		}
		sums, err := panefs.Checksums(cmd.Context(), f, algorithms)
		if err != nil {
			return err
		}
		for _, a := range algorithms {
			fmt.Fprintf(out, "%s:%s  %s\n", a, sums[a], arg)
		}
	}
	return nil
}
