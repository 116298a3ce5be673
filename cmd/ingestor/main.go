// Command ingestor runs the xmr-ingestor pipeline: the cobra root command
// wires "run", "analytics-backfill" and "serve-api" onto a shared
// env/flag-bound configuration.
package main

import (
	"fmt"
	"os"

	"github.com/hieutt50/xmr-ingestor/cmd/ingestor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
