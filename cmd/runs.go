package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/grantwatch/internal/app"
	"github.com/sells-group/grantwatch/internal/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect job run history",
	Long:  "Commands for listing and summarizing recorded job runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent job runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := app.Pool(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer pool.Close()

		job, _ := cmd.Flags().GetString("job")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		runs, err := runlog.NewLog(pool).Recent(ctx, job, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run statistics per job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := app.Pool(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer pool.Close()

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := runlog.NewLog(pool).Recent(ctx, "", 10000)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		formatRunStats(os.Stdout, computeRunStats(runs, cutoff))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("job", "", "filter by job type (schedule, promote, readiness, enrich, ...)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Bool("json", false, "print runs as JSON")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// jobStats holds aggregate statistics for one job type.
type jobStats struct {
	Job        string
	Total      int
	Success    int
	Partial    int
	Failed     int
	Running    int
	Processed  int
	Errors     int
	AvgDurSecs float64
}

// computeRunStats groups runs started at or after cutoff by job type.
func computeRunStats(runs []runlog.Run, cutoff time.Time) []jobStats {
	byJob := make(map[string]*jobStats)
	durs := make(map[string]time.Duration)
	finished := make(map[string]int)

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		s, ok := byJob[r.JobType]
		if !ok {
			s = &jobStats{Job: r.JobType}
			byJob[r.JobType] = s
		}
		s.Total++
		s.Processed += r.Processed
		s.Errors += r.ErrorCount
		switch r.Status {
		case runlog.StatusSuccess:
			s.Success++
		case runlog.StatusPartial:
			s.Partial++
		case runlog.StatusFailed:
			s.Failed++
		default:
			s.Running++
		}
		if r.FinishedAt != nil {
			durs[r.JobType] += r.FinishedAt.Sub(r.StartedAt)
			finished[r.JobType]++
		}
	}

	out := make([]jobStats, 0, len(byJob))
	for job, s := range byJob {
		if n := finished[job]; n > 0 {
			s.AvgDurSecs = durs[job].Seconds() / float64(n)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []runlog.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJOB\tSTATUS\tTRIGGER\tPROCESSED\tERRORS\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---\t------\t-------\t---------\t------\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.JobType,
			r.Status,
			r.TriggeredBy,
			r.Processed,
			r.ErrorCount,
			r.StartedAt.UTC().Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes per-job stats to w.
func formatRunStats(out io.Writer, stats []jobStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOB\tRUNS\tSUCCESS\tPARTIAL\tFAILED\tRUNNING\tPROCESSED\tERRORS\tAVG")
	for _, s := range stats {
		avg := "-"
		if s.AvgDurSecs > 0 {
			avg = fmt.Sprintf("%.1fs", s.AvgDurSecs)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.Job, s.Total, s.Success, s.Partial, s.Failed, s.Running, s.Processed, s.Errors, avg)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a run id for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
