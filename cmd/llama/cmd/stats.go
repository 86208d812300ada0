package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goatdb/llama/internal/database"
	"github.com/goatdb/llama/internal/loader"
)

// statsCmd loads files and prints per-snapshot statistics.
var statsCmd = &cobra.Command{
	Use:   "stats <file>...",
	Short: "Load files and print per-snapshot statistics",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		l := db.Loader()
		var total *loader.Stats
		for _, path := range args {
			stats, err := l.LoadFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			if total == nil {
				total = stats
			} else {
				total.EdgesRead += stats.EdgesRead
				total.EdgesLoaded += stats.EdgesLoaded
				total.Deduplicated += stats.Deduplicated
				total.LastLevel = stats.LastLevel
			}
		}

		g := db.Graph()
		fmt.Printf("database:  %s\n", g.Name())
		fmt.Printf("levels:    %d (window %d..%d)\n", g.NumLevels(), g.MinLevel(), g.MaxLevel())
		fmt.Printf("nodes:     %d\n", g.MaxNodes())
		fmt.Printf("edges:     %d read, %d loaded, %d deduplicated\n",
			total.EdgesRead, total.EdgesLoaded, total.Deduplicated)
		fmt.Printf("memory:    out=%dB in=%dB\n",
			g.Out().InMemorySize(), g.In().InMemorySize())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
