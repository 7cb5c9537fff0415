package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/gobeaver/panefs"
)

var (
	watchInterval time.Duration
	watchCount    int
	watchTimeout  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <location>",
	Short: "Report changes to a file",
	Long: `Print a line each time a file changes. Backends with change
notifications are used directly; the others are polled at --interval.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "poll interval for backends without notifications")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "exit after this many changes (0 to watch until interrupted)")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "exit after this long (0 for no limit)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	f, err := resolve(cmd, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if watchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, watchTimeout)
		defer cancel()
	}

	changes := make(chan struct{}, 1)
	failed := make(chan error, 1)
	cancel := panefs.OnChange(
		func() (panefs.ChangeToken, error) {
			token, err := panefs.WatchFile(ctx, f, watchInterval)
			if err != nil {
				failed <- err
			}
			return token, err
		},
		func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	)
	defer cancel()

	out := cmd.OutOrStdout()
	for seen := 0; watchCount == 0 || seen < watchCount; seen++ {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case <-changes:
		}

		f.Refresh()
		state := "deleted"
		if info, err := f.Stat(ctx); err == nil {
			state = fmt.Sprintf("size %d", info.Size)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", time.Now().Format(time.RFC3339), f.Location().Redacted(), state)
	}
	return nil
}
