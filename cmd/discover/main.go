// Command discover loads categorized discovery pages from configured
// content sources and manages the local cache, source health and bookshelf.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.4.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "discover",
		Short:        "discover -- multi-source content discovery",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().Bool("json", false, "Output machine-readable JSON")
	root.PersistentFlags().String("config", "", "Config file (default ~/.discover/config.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log to stderr instead of the log file")

	root.AddCommand(loadCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(clearCmd())
	root.AddCommand(sourcesCmd())
	root.AddCommand(eventsCmd())
	root.AddCommand(bookshelfCmd())
	root.AddCommand(sweepCmd())
	return root
}

// writeOutput renders data as JSON (if --json flag is set) or invokes
// the human-readable callback.
func writeOutput(cmd *cobra.Command, data any, humanFn func()) {
	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.Encode(data)
		return
	}
	humanFn()
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
