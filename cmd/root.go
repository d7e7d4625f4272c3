package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/syafiqeil/mev-builder/logging"
	"github.com/syafiqeil/mev-builder/version"
)

// cmdLogger is the logger used by the CLI before the project configuration is read
var cmdLogger = logging.NewLogger(zerolog.InfoLevel, true).NewSubLogger(logging.SERVICE_KEY, logging.CLI_SERVICE)

var rootCmd = &cobra.Command{
	Use:     "mevbuilder",
	Short:   "A sandwich searcher that sizes attacks by speculative execution",
	Long:    "mevbuilder watches the mempool for router swaps, simulates sandwiches against forked state and submits the profitable ones as bundles",
	Version: version.GetInfo().Short(),
}

// Execute runs the root command and returns the error of the invoked sub-command, if any.
func Execute() error {
	return rootCmd.Execute()
}
