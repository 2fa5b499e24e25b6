package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/grantwatch/internal/app"
	"github.com/sells-group/grantwatch/internal/lifecycle"
	"github.com/sells-group/grantwatch/internal/scheduler"
)

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Inspect and override an entry's lifecycle state",
}

var lifecycleGetCmd = &cobra.Command{
	Use:   "get <entry-id>",
	Short: "Show an entry's lifecycle record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMachine(cmd, func(m *lifecycle.Machine) (any, error) {
			return m.Get(cmd.Context(), args[0])
		})
	},
}

var lifecycleSuspendCmd = &cobra.Command{
	Use:   "suspend <entry-id>",
	Short: "Suspend an entry until resumed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withMachine(cmd, func(m *lifecycle.Machine) (any, error) {
			return m.Suspend(cmd.Context(), args[0], reason)
		})
	},
}

var lifecycleResumeCmd = &cobra.Command{
	Use:   "resume <entry-id>",
	Short: "Lift a suspension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMachine(cmd, func(m *lifecycle.Machine) (any, error) {
			return m.Resume(cmd.Context(), args[0])
		})
	},
}

var lifecycleSourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the URLs checked for an entry",
}

var lifecycleSourcesAddCmd = &cobra.Command{
	Use:   "add <entry-id> <url>",
	Short: "Register a check URL; types are guessed from the URL when not given",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sourceType, _ := cmd.Flags().GetString("source-type")
		docType, _ := cmd.Flags().GetString("doc-type")

		src, err := buildSource(args[1], sourceType, docType)
		if err != nil {
			return err
		}

		pool, err := app.Pool(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer pool.Close()

		if _, err := lifecycle.AddSources(ctx, pool, args[0], []lifecycle.Source{src}, true); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Registered %s (%s/%s) for %s\n", src.URL, src.SourceType, src.DocType, args[0])
		return nil
	},
}

var lifecycleSourcesListCmd = &cobra.Command{
	Use:   "list <entry-id>",
	Short: "List an entry's check URLs in check order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := app.Pool(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer pool.Close()

		urls, err := scheduler.NewPostgresStore(pool).CheckURLs(ctx, args[0])
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			fmt.Fprintln(os.Stderr, "No check URLs.")
			return nil
		}
		formatCheckURLs(os.Stdout, scheduler.Representative(urls, len(urls)))
		return nil
	},
}

// buildSource fills unset types from the URL and validates the result.
func buildSource(rawURL, sourceType, docType string) (lifecycle.Source, error) {
	src := lifecycle.ClassifySource(rawURL)
	if sourceType != "" {
		src.SourceType = sourceType
	}
	if docType != "" {
		src.DocType = docType
	}
	return src, src.Validate()
}

func formatCheckURLs(out io.Writer, urls []scheduler.CheckURL) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSOURCE\tDOC\tURL")
	for i, u := range urls {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, u.SourceType, u.DocType, u.URL)
	}
	_ = w.Flush()
}

func withMachine(cmd *cobra.Command, fn func(m *lifecycle.Machine) (any, error)) error {
	pool, err := app.Pool(cmd.Context(), cfg, "run")
	if err != nil {
		return err
	}
	defer pool.Close()

	out, err := fn(lifecycle.NewMachine(pool))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	lifecycleSuspendCmd.Flags().String("reason", "manual", "reason recorded in lifecycle history")
	lifecycleSourcesAddCmd.Flags().String("source-type", "", "secretariat, prefecture, city, ministry or portal")
	lifecycleSourcesAddCmd.Flags().String("doc-type", "", "faq, news, guideline or form")

	lifecycleSourcesCmd.AddCommand(lifecycleSourcesAddCmd)
	lifecycleSourcesCmd.AddCommand(lifecycleSourcesListCmd)
	lifecycleCmd.AddCommand(lifecycleSourcesCmd)

	lifecycleCmd.AddCommand(lifecycleGetCmd)
	lifecycleCmd.AddCommand(lifecycleSuspendCmd)
	lifecycleCmd.AddCommand(lifecycleResumeCmd)
	rootCmd.AddCommand(lifecycleCmd)
}
