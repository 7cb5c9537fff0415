package cmd

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
)

var (
	catOffset int64
	catLength int64
)

var catCmd = &cobra.Command{
	Use:   "cat <location>",
	Short: "Print file content",
	Long: `Print the content of a file, or of the byte range given by --offset and
--length. Backends with random reads seek to the offset; the others are
read from the start.`,
	Args: cobra.ExactArgs(1),
	RunE: runCat,
}

func init() {
	catCmd.Flags().Int64Var(&catOffset, "offset", 0, "first byte to print")
	catCmd.Flags().Int64Var(&catLength, "length", -1, "number of bytes to print (-1 for all)")
	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	f, err := resolve(cmd, args[0])
	if err != nil {
		return err
	}
	r, err := openAt(cmd, f, catOffset)
	if err != nil {
		return err
	}
	defer r.Close()

	var src io.Reader = r
	if catLength >= 0 {
		src = io.LimitReader(r, catLength)
	}
	_, err = io.Copy(cmd.OutOrStdout(), src)
	return err
}

// openAt returns a stream positioned at off.
func openAt(cmd *cobra.Command, f panefs.File, off int64) (io.ReadCloser, error) {
	ctx := cmd.Context()
	if off > 0 {
		rr, err := f.OpenRandomRead(ctx)
		if err == nil {
			if _, err := rr.Seek(off, io.SeekStart); err != nil {
				rr.Close()
				return nil, err
			}
			return rr, nil
		}
		if !panefs.IsUnsupported(err) {
			return nil, err
		}
	}

	rc, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	if off > 0 {
		if _, err := io.CopyN(io.Discard, rc, off); err != nil && !errors.Is(err, io.EOF) {
			rc.Close()
			return nil, err
		}
	}
	return rc, nil
}
