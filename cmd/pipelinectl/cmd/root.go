// Package cmd implements the pipelinectl admin CLI: fill, check-pool, and
// config get/set, exposing the PipelineService and PipelineConfigStore
// operations the out-of-scope admin UI would otherwise own.
package cmd

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var verbosity int

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Daily connections pipeline admin CLI",
	Long: `pipelinectl drives the connection-puzzle content pipeline from the
command line: trigger a rolling-window fill, inspect per-color pool
health, and manage per-genre pipeline configuration.`,
	Version: version,
}

// Execute adds all child commands to the root command and runs it. This
// is called by main.main() exactly once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "verbosity level (1 or higher makes fill print stage transitions to stderr; the log level is not changed)")
}
