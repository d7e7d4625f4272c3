package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/syafiqeil/mev-builder/config"
)

// addRunFlags adds the various flags for the run command to flags
func addRunFlags(flags *pflag.FlagSet) error {
	defaultConfig := config.GetDefaultProjectConfig()

	// Prevent alphabetical sorting of usage message
	flags.SortFlags = false

	// Config file
	flags.String("config", "", "path to config file")

	// Env file holding the signing keys
	flags.String("env-file", "", fmt.Sprintf("path to the env file holding the signing keys (default is %q)", DefaultEnvFilename))

	// Endpoints
	flags.String("rpc-url", "", "rpc url state is forked from (overrides the config file and the environment)")
	flags.String("ws-url", "", "websocket url pending transactions are streamed from (overrides the config file and the environment)")

	// Fork block
	flags.Uint64("fork-block", 0,
		fmt.Sprintf("block number state is forked at (unless a config file is provided, default is %d). 0 means the latest block", defaultConfig.Fork.BlockNumber))

	// Minimum profit
	flags.String("min-profit", "",
		fmt.Sprintf("net profit in ether an opportunity must exceed to be submitted (unless a config file is provided, default is %s)", defaultConfig.Search.MinProfit))

	// Search iterations
	flags.Int("iterations", 0,
		fmt.Sprintf("number of probes per opportunity (unless a config file is provided, default is %d)", defaultConfig.Search.Iterations))

	// Dry run
	flags.Bool("dry-run", false,
		fmt.Sprintf("evaluate opportunities without submitting bundles (unless a config file is provided, default is %t)", defaultConfig.Submission.DryRun))

	// Metrics endpoint
	flags.String("metrics-addr", "", "address the Prometheus endpoint listens on, e.g. :9090")
	return nil
}

// updateProjectConfigWithRunFlags will update the given projectConfig with any CLI arguments that were provided to the
// run command
func updateProjectConfigWithRunFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// If --rpc-url was used
	if cmd.Flags().Changed("rpc-url") {
		projectConfig.Fork.RpcUrl, err = cmd.Flags().GetString("rpc-url")
		if err != nil {
			return err
		}
	}

	// If --ws-url was used
	if cmd.Flags().Changed("ws-url") {
		projectConfig.Fork.WsUrl, err = cmd.Flags().GetString("ws-url")
		if err != nil {
			return err
		}
	}

	// If --fork-block was used
	if cmd.Flags().Changed("fork-block") {
		projectConfig.Fork.BlockNumber, err = cmd.Flags().GetUint64("fork-block")
		if err != nil {
			return err
		}
	}

	// If --min-profit was used
	if cmd.Flags().Changed("min-profit") {
		projectConfig.Search.MinProfit, err = cmd.Flags().GetString("min-profit")
		if err != nil {
			return err
		}
	}

	// If --iterations was used
	if cmd.Flags().Changed("iterations") {
		projectConfig.Search.Iterations, err = cmd.Flags().GetInt("iterations")
		if err != nil {
			return err
		}
	}

	// If --dry-run was used
	if cmd.Flags().Changed("dry-run") {
		projectConfig.Submission.DryRun, err = cmd.Flags().GetBool("dry-run")
		if err != nil {
			return err
		}
	}

	// If --metrics-addr was used
	if cmd.Flags().Changed("metrics-addr") {
		projectConfig.Metrics.ListenAddress, err = cmd.Flags().GetString("metrics-addr")
		if err != nil {
			return err
		}
	}
	return nil
}
