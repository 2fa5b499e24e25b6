package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/grantwatch/internal/app"
	"github.com/sells-group/grantwatch/internal/jobs"
	"github.com/sells-group/grantwatch/internal/secrets"
	"github.com/sells-group/grantwatch/internal/server"
)

var (
	servePort   int
	serveNoCron bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger server and the cron runner",
	Long:  "Serves the manual job trigger, health and metrics endpoints, and fires the configured cron schedules in-process unless disabled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := secrets.ResolveCronSecret(ctx, cfg, nil); err != nil {
			return err
		}
		if cfg.Cron.Secret == "" {
			zap.L().Warn("cron secret not configured, manual triggers will be rejected")
		}

		env, err := app.New(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(env.Jobs, server.Options{
			Secret:         cfg.Cron.Secret,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, fmt.Sprintf(":%d", port))
		})

		if cfg.Cron.Enabled && !serveNoCron {
			runner, err := jobs.NewCron(env.Jobs, cfg.Cron.Schedules)
			if err != nil {
				return err
			}
			g.Go(func() error {
				return runner.Run(gctx)
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoCron, "no-cron", false, "serve triggers only, without in-process schedules")
	rootCmd.AddCommand(serveCmd)
}
