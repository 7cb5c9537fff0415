package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/search"
	"github.com/gobeaver/panefs/window"
)

var (
	findIgnoreCase bool
	findBackward   bool
	findFrom       int64
	findHex        bool
	findMax        int
	findContext    int
	findWindow     int
)

var findCmd = &cobra.Command{
	Use:   "find <location> <pattern>",
	Short: "Search file content for a byte pattern",
	Long: `Search a file for every occurrence of a pattern and print the match
offsets. Content is read through a paged window, so files of any size on
any backend can be searched without loading them.

Examples:
  panefs find /var/log/syslog "connection reset"
  panefs find -i --context 16 sftp://me@host/app.log error
  panefs find --backward --max 1 s3://logs/today.log "FATAL"
  panefs find --hex image.png "89 50 4e 47"`,
	Args: cobra.ExactArgs(2),
	RunE: runFind,
}

func init() {
	findCmd.Flags().BoolVarP(&findIgnoreCase, "ignore-case", "i", false, "match ASCII letters case-insensitively")
	findCmd.Flags().BoolVarP(&findBackward, "backward", "b", false, "search from the end towards the start")
	findCmd.Flags().Int64Var(&findFrom, "from", -1, "start offset (default: start, or end with --backward)")
	findCmd.Flags().BoolVar(&findHex, "hex", false, "pattern is hex encoded")
	findCmd.Flags().IntVarP(&findMax, "max", "n", 0, "stop after this many matches (0 for all)")
	findCmd.Flags().IntVarP(&findContext, "context", "C", 0, "print this many bytes around each match")
	findCmd.Flags().IntVar(&findWindow, "window", 0, "window capacity in bytes (default from PANEFS_WINDOW_SIZE)")
	rootCmd.AddCommand(findCmd)
}

func parsePattern(raw string, isHex bool) ([]byte, error) {
	if !isHex {
		if raw == "" {
			return nil, errors.New("empty pattern")
		}
		return []byte(raw), nil
	}
	pattern, err := hex.DecodeString(strings.Join(strings.Fields(raw), ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex pattern: %w", err)
	}
	if len(pattern) == 0 {
		return nil, errors.New("empty pattern")
	}
	return pattern, nil
}

func runFind(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pattern, err := parsePattern(args[1], findHex)
	if err != nil {
		return err
	}
	f, err := resolve(cmd, args[0])
	if err != nil {
		return err
	}

	src, err := window.SourceFor(ctx, f)
	if err != nil {
		return err
	}
	capacity := findWindow
	if capacity <= 0 {
		capacity = config.WindowSize
	}
	logger := panefs.NewLogger(cmd.ErrOrStderr(), config)
	w := window.New(src,
		window.WithCapacity(capacity),
		window.WithLogger(logger),
	)
	defer w.Close()

	var opts []search.MatcherOption
	if findIgnoreCase {
		opts = append(opts, search.IgnoreCase())
	}
	m := search.NewMatcher(pattern, opts...)
	finder := search.NewFinder(m, w)

	from := findFrom
	if from < 0 && findBackward {
		size, err := w.Size()
		if err != nil {
			return err
		}
		from = size - int64(len(pattern))
	}
	if from < 0 {
		from = 0
	}
	finder.Reset(from)

	out := cmd.OutOrStdout()
	found := 0
	for findMax == 0 || found < findMax {
		next := finder.Next
		if findBackward {
			next = finder.Prev
		}
		off, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		found++
		if findContext > 0 {
			snippet, err := around(w, off, len(pattern), findContext)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d\t%s\n", off, snippet)
		} else {
			fmt.Fprintln(out, off)
		}
	}

	logger.Debug("search finished", "location", f.Location().Redacted(), "matches", found, "refills", w.Refills())
	if found == 0 {
		return errNoMatch
	}
	return nil
}

// errNoMatch makes the command exit non-zero, like grep.
var errNoMatch = errors.New("no match")

// around returns the match with up to n bytes on each side, quoted.
func around(w *window.Window, off int64, length, n int) (string, error) {
	size, err := w.Size()
	if err != nil {
		return "", err
	}
	start := max(off-int64(n), 0)
	end := min(off+int64(length+n), size)

	buf := make([]byte, 0, end-start)
	for i := start; i < end; i++ {
		b, err := w.ByteAt(i)
		if err != nil {
			return "", err
		}
		buf = append(buf, b)
	}
	return strconv.Quote(string(buf)), nil
}
