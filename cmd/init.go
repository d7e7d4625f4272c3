package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/syafiqeil/mev-builder/config"
	"github.com/syafiqeil/mev-builder/logging/colors"
)

// initCmd represents the command provider for init
var initCmd = &cobra.Command{
	Use:               "init",
	Short:             "Initializes a project configuration",
	Long:              `Initializes a project configuration with the mainnet defaults`,
	Args:              cmdValidateInitArgs,
	ValidArgsFunction: cmdValidInitArgs,
	RunE:              cmdRunInit,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add flags to init command
	err := addInitFlags(initCmd.Flags())
	if err != nil {
		cmdLogger.Panic("Failed to initialize the init command", err)
	}

	// Add the init command and its associated flags to the root command
	rootCmd.AddCommand(initCmd)
}

// cmdValidInitArgs will return which flags are valid for dynamic completion for the init command
func cmdValidInitArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var unusedFlags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateInitArgs makes sure that there are no positional arguments provided to the init command
func cmdValidateInitArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("init does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the init command", err)
		return err
	}
	return nil
}

// cmdRunInit executes the init CLI command and writes the default project configuration, updated with any flags
func cmdRunInit(cmd *cobra.Command, args []string) error {
	// Check to see if --out flag was used and store the value of --out flag
	outputFlagUsed := cmd.Flags().Changed("out")
	outputPath, err := cmd.Flags().GetString("out")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	// If we weren't provided an output path (flag was not used), we use our working directory
	if !outputFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			cmdLogger.Error("Failed to run the init command", err)
			return err
		}
		outputPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	projectConfig := config.GetDefaultProjectConfig()
	err = updateProjectConfigWithInitFlags(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	if !force {
		overwrite, err := confirmOverwrite(cmd, outputPath)
		if err != nil {
			cmdLogger.Error("Failed to scan input", err)
			return err
		}
		if !overwrite {
			fmt.Fprintln(cmd.OutOrStdout(), "Operation canceled.")
			return nil
		}
	}

	// Write our project configuration
	err = projectConfig.WriteToFile(outputPath)
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	// Print a success message
	if absoluteOutputPath, err := filepath.Abs(outputPath); err == nil {
		outputPath = absoluteOutputPath
	}
	cmdLogger.Info("Project configuration successfully output to: ", colors.Bold, outputPath, colors.Reset)
	if projectConfig.Strategy.HelperBytecode == "" {
		cmdLogger.Warn("Set strategy.helperBytecode to the helper contract creation code before running")
	}
	return nil
}

// confirmOverwrite asks whether an existing file at path may be replaced. It returns true without asking when there
// is no file yet.
func confirmOverwrite(cmd *cobra.Command, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return true, nil
	}
	fmt.Fprint(cmd.OutOrStdout(), "The file already exists. Overwrite? (y/n): ")
	var response string
	if _, err := fmt.Fscan(cmd.InOrStdin(), &response); err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(response), "y"), nil
}
