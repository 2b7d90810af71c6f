package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/patentrag/engine/corpus"
)

func indexCmd(a *app) *cobra.Command {
	var (
		recreate  bool
		batchSize int
		seqStart  int64
	)
	cmd := &cobra.Command{
		Use:   "index <pairs.jsonl>",
		Short: "Embed historical translation pairs into the vector index",
		Long: `Reads JSONL translation pairs ({"id", "source_text", "target_text", "domain",
"section_type", "patent_id"}), embeds the source text and upserts each pair into
Qdrant under a deterministic point ID. Later lines get higher sequence numbers
and win similarity ties. Re-running the same file is idempotent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.serveMetrics(ctx)

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			pairs, read, err := corpus.ReadJSONL(f, a.logger)
			f.Close()
			if err != nil {
				return err
			}
			a.logger.Info("corpus read", "lines", read.Lines, "pairs", read.Pairs, "errors", read.Errors)

			embed := a.embedClient()
			if err := embed.Ping(ctx); err != nil {
				return err
			}

			vs, err := a.openIndex()
			if err != nil {
				return err
			}
			defer vs.Close()
			if recreate {
				if err := vs.DeleteCollection(ctx); err != nil {
					a.logger.Warn("delete collection", "collection", vs.Collection(), "err", err)
				}
			}
			if err := vs.EnsureCollection(ctx, a.cfg.Qdrant.VectorSize); err != nil {
				return err
			}

			ix := corpus.NewIndexer(embed, vs, a.logger)
			ix.Metrics = a.metrics
			if batchSize > 0 {
				ix.BatchSize = batchSize
			}
			stats, err := ix.Run(ctx, pairs, seqStart)
			fmt.Fprintf(cmd.OutOrStdout(), "indexed: %d | failed: %d | rejected lines: %d | batches: %d\n",
				stats.Indexed, stats.Failed, read.Errors, stats.Batches)
			if err != nil {
				return err
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d pairs could not be indexed", stats.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&recreate, "recreate", false, "drop and recreate the collection first")
	cmd.Flags().IntVar(&batchSize, "batch-size", corpus.DefaultBatchSize, "pairs embedded and written per batch")
	cmd.Flags().Int64Var(&seqStart, "seq-start", 1, "sequence number of the first pair")
	return cmd
}
