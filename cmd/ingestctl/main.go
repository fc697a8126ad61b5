// Command ingestctl is a thin CLI front-end over the ingestor REST surface
// (SPEC_FULL.md §8): ingest file|batch|status|cancel. Grounded on
// cuemby-warren's cmd/warren layout — one file per subcommand, a shared
// persistent --server flag, cobra.Command.RunE issuing plain net/http calls
// against the daemon rather than a generated client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ingestctl",
	Short: "ingestctl drives the ingestor service over its REST surface",
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8090", "ingestor server base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer JWT (overrides INGESTCTL_TOKEN)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Submit content for ingestion",
}

func init() {
	ingestCmd.AddCommand(ingestFileCmd)
	ingestCmd.AddCommand(ingestBatchCmd)
}
