// The llama command is the companion CLI of the graph store: it bulk
// loads graph files, prints store statistics, and runs the reference
// analytic kernels.
package main

import (
	"os"

	"github.com/goatdb/llama/cmd/llama/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
