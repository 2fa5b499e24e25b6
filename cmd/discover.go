package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/app"
	"github.com/sells-group/grantwatch/internal/discovery"
	"github.com/sells-group/grantwatch/internal/runlog"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Feed and inspect the discovery pipeline",
}

var discoverIngestCmd = &cobra.Command{
	Use:   "ingest <file|->",
	Short: "Ingest candidates from a JSON file",
	Long:  "Reads a JSON array of candidates (source_id, title, summary, url, region_code, ...) and records each sighting in discovery_items.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := runlog.WithTrigger(cmd.Context(), "cli")

		var in io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return eris.Wrap(err, "discover ingest: open")
			}
			defer f.Close() //nolint:errcheck
			in = f
		}
		candidates, err := parseCandidates(in)
		if err != nil {
			return err
		}

		pool, err := app.Pool(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer pool.Close()

		runs := runlog.NewLog(pool)
		p := discovery.NewPipeline(discovery.NewPostgresStore(pool), runs, app.DiscoveryConfig(cfg.Discovery))

		sum, err := runs.Run(ctx, "ingest", func(ctx context.Context, b *runlog.Batch) error {
			ingestAll(ctx, p, b, candidates)
			return nil
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}

var discoverStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count discovery items per stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := app.Pool(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer pool.Close()

		p := discovery.NewPipeline(discovery.NewPostgresStore(pool), nil, app.DiscoveryConfig(cfg.Discovery))
		counts, err := p.Stats(ctx)
		if err != nil {
			return err
		}
		formatStageCounts(os.Stdout, counts)
		return nil
	},
}

// ingester is the part of discovery.Pipeline used by ingestAll.
type ingester interface {
	Ingest(ctx context.Context, c discovery.Candidate) (discovery.IngestOutcome, *discovery.Item, error)
}

func ingestAll(ctx context.Context, p ingester, b *runlog.Batch, candidates []discovery.Candidate) {
	b.Started()
	for _, c := range candidates {
		b.Process()
		outcome, _, err := p.Ingest(ctx, c)
		if err != nil {
			zap.L().Warn("discover: ingest failed", zap.String("source_id", c.SourceID), zap.Error(err))
			b.Fail(c.SourceID, err)
			continue
		}
		b.Add(string(outcome), 1)
		switch outcome {
		case discovery.OutcomeInserted:
			b.Insert()
		case discovery.OutcomeChanged:
			b.Update()
		default:
			b.Skip()
		}
	}
}

var candidateValidator = validator.New()

func parseCandidates(r io.Reader) ([]discovery.Candidate, error) {
	var out []discovery.Candidate
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "discover ingest: decode candidates")
	}
	for i, c := range out {
		if err := candidateValidator.Struct(c); err != nil {
			return nil, eris.Wrapf(err, "discover ingest: candidate %d", i)
		}
	}
	return out, nil
}

func formatStageCounts(out io.Writer, counts map[discovery.Stage]int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	total := 0
	for _, s := range []discovery.Stage{discovery.StageRaw, discovery.StageValidated, discovery.StageRejected, discovery.StagePromoted} {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", s, counts[s])
		total += counts[s]
	}
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", total)
	_ = w.Flush()
}

func init() {
	discoverCmd.AddCommand(discoverIngestCmd)
	discoverCmd.AddCommand(discoverStatsCmd)
	rootCmd.AddCommand(discoverCmd)
}
