package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/grantwatch/internal/app"
	"github.com/sells-group/grantwatch/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		list, _ := cmd.Flags().GetBool("list")
		if list {
			names, err := db.MigrationNames()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		}

		pool, err := app.Pool(ctx, cfg, "migrate")
		if err != nil {
			return err
		}
		defer pool.Close()

		return db.Migrate(ctx, pool)
	},
}

func init() {
	migrateCmd.Flags().Bool("list", false, "list embedded migrations without applying them")
	rootCmd.AddCommand(migrateCmd)
}
