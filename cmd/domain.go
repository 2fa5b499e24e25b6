package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/grantwatch/internal/app"
	"github.com/sells-group/grantwatch/internal/domainpolicy"
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Inspect and switch per-domain crawl policy",
}

var domainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domain policies, worst first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := app.Pool(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer pool.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		policies, err := domainpolicy.NewGuard(pool).List(ctx, limit)
		if err != nil {
			return err
		}
		if len(policies) == 0 {
			fmt.Fprintln(os.Stderr, "No domain policies found.")
			return nil
		}
		formatPolicies(os.Stdout, policies)
		return nil
	},
}

var domainEnableCmd = &cobra.Command{
	Use:   "enable <domain>",
	Short: "Re-enable crawling of a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDomainEnabled(cmd, args[0], true, "")
	},
}

var domainDisableCmd = &cobra.Command{
	Use:   "disable <domain>",
	Short: "Block crawling of a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return setDomainEnabled(cmd, args[0], false, reason)
	},
}

func setDomainEnabled(cmd *cobra.Command, raw string, enabled bool, reason string) error {
	ctx := cmd.Context()

	pool, err := app.Pool(ctx, cfg, "run")
	if err != nil {
		return err
	}
	defer pool.Close()

	// Accept either a bare key or a URL.
	key := domainpolicy.DomainKey(raw)
	if key == "" {
		key = raw
	}
	if err := domainpolicy.NewGuard(pool).SetEnabled(ctx, key, enabled, reason); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("%s %s\n", key, state)
	return nil
}

func formatPolicies(out io.Writer, policies []domainpolicy.Policy) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tENABLED\tOK\tFAIL\tLAST_ERROR\tLAST_FAILURE\tREASON")
	for _, p := range policies {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%s\t%s\t%s\n",
			p.DomainKey,
			p.Enabled,
			p.SuccessCount,
			p.FailureCount,
			p.LastErrorCode,
			formatTime(p.LastFailureAt),
			p.BlockedReason,
		)
	}
	_ = w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func init() {
	domainListCmd.Flags().Int("limit", 50, "max number of domains to display")
	domainDisableCmd.Flags().String("reason", "manual", "reason recorded with the block")

	domainCmd.AddCommand(domainListCmd)
	domainCmd.AddCommand(domainEnableCmd)
	domainCmd.AddCommand(domainDisableCmd)
	rootCmd.AddCommand(domainCmd)
}
