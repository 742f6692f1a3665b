package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daeunpk/wink/internal/catalog"
	"github.com/daeunpk/wink/internal/report"
	"github.com/daeunpk/wink/internal/retrieval"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and query the catalog vector index",
	}
	cmd.AddCommand(newIndexBuildCmd(opts))
	cmd.AddCommand(newIndexQueryCmd(opts))
	return cmd
}

func newIndexBuildCmd(opts *rootOptions) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed a track catalog and replace the index with it",
		Long: `Reads a catalog (parquet or JSON lines with TRACK_ID, PATH, genre_tags and
mood_tags columns), embeds "Genre: ... Mood: ..." for every track and
replaces the configured index with the result.`,
		Example: `  wink index build --catalog data/jamendo_songs.parquet`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := opts.cfg, opts.logger
			items, err := catalog.NewLoader(catalogPath).Load()
			if err != nil {
				return err
			}
			embedder, err := newEmbedder(cfg.Embedding)
			if err != nil {
				return err
			}
			store, err := openIndex(cfg.Index, true)
			if err != nil {
				return err
			}

			start := time.Now()
			n, err := retrieval.New(embedder, store, logger).Index(cmd.Context(), items, cfg.Index.BatchSize)
			if err != nil {
				return err
			}
			logger.Info("Catalog indexed", "items", n, "backend", cfg.Index.Backend, "embedder", embedder.Name(), "duration", time.Since(start))
			fmt.Fprintf(cmd.OutOrStdout(), "%d tracks indexed\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog file (.parquet or .jsonl)")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

func newIndexQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		topK   int
		format string
	)
	cmd := &cobra.Command{
		Use:     "query <keyword>...",
		Short:   "Rank catalog tracks against keywords",
		Example: `  wink index query calm rainy melancholy --top-k 3`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.engine == nil {
				return fmt.Errorf("no catalog index at %s, run wink index build first", a.cfg.Index.Path)
			}
			if topK <= 0 {
				topK = a.cfg.Pipeline.TopK
			}
			items, err := a.engine.Query(cmd.Context(), args, topK)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), f, items)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of tracks to return (default: pipeline.top_k)")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: json or yaml")
	return cmd
}
