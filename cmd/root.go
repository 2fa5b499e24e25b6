package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "grantwatch",
	Short: "Subsidy discovery, scheduling and readiness pipeline",
	Long:  "Ingests subsidy candidates, promotes trustworthy ones into the catalog, keeps entries fresh on a due-item schedule and scores each entry for readiness.",
	// Job and store failures are not usage errors.
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "grantwatch: load config")
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "grantwatch: init logger")
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
