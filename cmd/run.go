package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/app"
	"github.com/sells-group/grantwatch/internal/jobs"
	"github.com/sells-group/grantwatch/internal/runlog"
)

var runLimit int

var runCmd = &cobra.Command{
	Use:       "run <job>",
	Short:     "Run one job once",
	Long:      "Runs a single job (schedule, validate, promote, readiness, enrich, alerts) and prints its run summary as JSON.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{jobs.Schedule, jobs.Validate, jobs.Promote, jobs.Readiness, jobs.Enrich, jobs.Alerts},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := runlog.WithTrigger(cmd.Context(), "cli")

		env, err := app.New(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, runErr := env.Jobs.Run(ctx, args[0], runLimit)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			zap.L().Warn("encode summary", zap.Error(err))
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max items to process (default from config)")
	rootCmd.AddCommand(runCmd)
}
