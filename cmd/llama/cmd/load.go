package cmd

import (
	"github.com/spf13/cobra"

	"github.com/goatdb/llama/internal/database"
)

var (
	loadBatchSize int64
	loadDirection string
	loadDedup     bool
	loadSort      bool
	loadArchive   bool
	loadKeep      int
)

// loadCmd bulk loads one or more graph files.
var loadCmd = &cobra.Command{
	Use:   "load <file>...",
	Short: "Bulk load graph files into snapshots",
	Long: `Load parses the given files (edge lists, X-Stream Type 1) into the
writable stage and checkpoints them into immutable snapshots, one per
batch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("batch") {
			cfg.Loader.BatchSize = loadBatchSize
		}
		if cmd.Flags().Changed("direction") {
			cfg.Loader.Direction = loadDirection
		}
		if cmd.Flags().Changed("deduplicate") {
			cfg.Loader.Deduplicate = loadDedup
		}
		if cmd.Flags().Changed("sort-edges") {
			cfg.Loader.SortEdges = loadSort
		}
		if cmd.Flags().Changed("keep-levels") {
			cfg.Database.KeepLevels = loadKeep
		}

		db, err := database.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		l := db.Loader()
		for _, path := range args {
			stats, err := l.LoadFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			logger.Info("%s: %d edges into levels %d..%d",
				path, stats.EdgesLoaded, stats.FirstLevel, stats.LastLevel)
		}

		if loadArchive {
			if err := db.ArchiveLevels(cmd.Context()); err != nil {
				return err
			}
		}

		logger.Info("store: %s", db.Stats())
		return nil
	},
}

func init() {
	loadCmd.Flags().Int64Var(&loadBatchSize, "batch", 0, "edges per checkpoint (0 = one checkpoint per file)")
	loadCmd.Flags().StringVar(&loadDirection, "direction", "directed", "directed, undirected_double or undirected_ordered")
	loadCmd.Flags().BoolVar(&loadDedup, "deduplicate", false, "collapse parallel edges within a batch")
	loadCmd.Flags().BoolVar(&loadSort, "sort-edges", false, "sort each adjacency list before emission")
	loadCmd.Flags().BoolVar(&loadArchive, "archive", false, "upload persisted levels to the archive backend")
	loadCmd.Flags().IntVar(&loadKeep, "keep-levels", 0, "retain only this many recent snapshots")
	rootCmd.AddCommand(loadCmd)
}
