package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/grantwatch/internal/shard"
)

var shardCmd = &cobra.Command{
	Use:   "shard",
	Short: "Inspect shard assignments",
}

var shardOfCmd = &cobra.Command{
	Use:   "of <id>...",
	Short: "Print the shard of each entity id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSHARD")
		for _, id := range args {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", id, shard.Of(id))
		}
		return w.Flush()
	},
}

var shardWindowCmd = &cobra.Command{
	Use:   "window",
	Short: "Print the shard windows active at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")
		now := time.Now()
		if at != "" {
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return eris.Wrap(err, "shard window: parse --at")
			}
			now = t
		}
		formatWindows(os.Stdout, now)
		return nil
	},
}

func formatWindows(out io.Writer, now time.Time) {
	hour := shard.HourWindow(now)
	five := shard.FiveMinuteWindow(now)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Time:\t%s\n", now.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Hour window:\t%d, %d\n", hour.Primary, hour.Secondary)
	_, _ = fmt.Fprintf(w, "Five-minute window:\t%d, %d\n", five.Primary, five.Secondary)
	_ = w.Flush()
}

func init() {
	shardWindowCmd.Flags().String("at", "", "RFC3339 time (default now)")

	shardCmd.AddCommand(shardOfCmd)
	shardCmd.AddCommand(shardWindowCmd)
	rootCmd.AddCommand(shardCmd)
}
