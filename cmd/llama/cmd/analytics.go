package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/goatdb/llama/internal/analytics"
	"github.com/goatdb/llama/internal/database"
	"github.com/goatdb/llama/internal/mlcsr"
)

var (
	prIterations int
	prDamping    float64
	prTop        int
	bfsRoot      int64
)

// pagerankCmd loads files and runs PageRank on the latest snapshot.
var pagerankCmd = &cobra.Command{
	Use:   "pagerank <file>...",
	Short: "Load files and run PageRank on the latest snapshot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		l := db.Loader()
		for _, path := range args {
			if _, err := l.LoadFile(cmd.Context(), path); err != nil {
				return err
			}
		}

		opts := analytics.DefaultPageRankOptions()
		opts.Iterations = prIterations
		opts.Damping = prDamping
		opts.Workers = cfg.Database.Workers
		ranks, err := analytics.PageRank(db.Graph(), opts)
		if err != nil {
			return err
		}

		type nodeRank struct {
			node mlcsr.NodeID
			rank float64
		}
		top := make([]nodeRank, 0, len(ranks))
		for n, r := range ranks {
			top = append(top, nodeRank{mlcsr.NodeID(n), r})
		}
		sort.Slice(top, func(i, j int) bool { return top[i].rank > top[j].rank })
		if len(top) > prTop {
			top = top[:prTop]
		}
		for _, nr := range top {
			fmt.Printf("%12d  %.8f\n", nr.node, nr.rank)
		}
		return nil
	},
}

// bfsCmd loads files and runs a BFS from the given root.
var bfsCmd = &cobra.Command{
	Use:   "bfs <file>...",
	Short: "Load files and run a breadth-first search",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		l := db.Loader()
		for _, path := range args {
			if _, err := l.LoadFile(cmd.Context(), path); err != nil {
				return err
			}
		}

		res := analytics.BFS(db.Graph(), mlcsr.NodeID(bfsRoot))
		fmt.Printf("root %d reaches %d of %d nodes\n",
			bfsRoot, res.Reached, db.Graph().MaxNodes())
		return nil
	},
}

func init() {
	pagerankCmd.Flags().IntVar(&prIterations, "iterations", 10, "power iterations")
	pagerankCmd.Flags().Float64Var(&prDamping, "damping", 0.85, "damping factor")
	pagerankCmd.Flags().IntVar(&prTop, "top", 20, "nodes to print")
	bfsCmd.Flags().Int64Var(&bfsRoot, "root", 0, "root node")
	rootCmd.AddCommand(pagerankCmd)
	rootCmd.AddCommand(bfsCmd)
}
