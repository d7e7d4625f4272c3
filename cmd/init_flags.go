package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/syafiqeil/mev-builder/config"
)

// addInitFlags adds the various flags for the init command to flags
func addInitFlags(flags *pflag.FlagSet) error {
	// Output path for configuration
	flags.String("out", "", "output path for the new project configuration file")

	// Endpoints
	flags.String("rpc-url", "", "rpc url state is forked from")
	flags.String("ws-url", "", "websocket url pending transactions are streamed from")

	// Helper contract
	flags.String("helper-bytecode", "", "hex-encoded creation code of the helper contract")

	// Skip the overwrite prompt
	flags.Bool("force", false, "overwrite an existing configuration file without asking")
	return nil
}

// updateProjectConfigWithInitFlags will update the given projectConfig with any CLI arguments that were provided to
// the init command
func updateProjectConfigWithInitFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
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

	// If --helper-bytecode was used
	if cmd.Flags().Changed("helper-bytecode") {
		projectConfig.Strategy.HelperBytecode, err = cmd.Flags().GetString("helper-bytecode")
		if err != nil {
			return err
		}
	}
	return nil
}
