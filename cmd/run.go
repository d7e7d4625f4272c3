package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/syafiqeil/mev-builder/cmd/exitcodes"
	"github.com/syafiqeil/mev-builder/config"
	"github.com/syafiqeil/mev-builder/logging/colors"
	"github.com/syafiqeil/mev-builder/searcher"
)

// runCmd represents the command provider for running the searcher
var runCmd = &cobra.Command{
	Use:               "run",
	Short:             "Starts the searcher",
	Long:              `Starts the searcher: pending router swaps are simulated against forked state and profitable sandwiches are submitted as bundles`,
	Args:              cmdValidateRunArgs,
	ValidArgsFunction: cmdValidRunArgs,
	RunE:              cmdRunRun,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the run command
	err := addRunFlags(runCmd.Flags())
	if err != nil {
		cmdLogger.Panic("Failed to initialize the run command", err)
	}

	// Add the run command and its associated flags to the root command
	rootCmd.AddCommand(runCmd)
}

// cmdValidRunArgs will return which flags are valid for dynamic completion for the run command
func cmdValidRunArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateRunArgs makes sure that there are no positional arguments provided to the run command
func cmdValidateRunArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("run does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the run command", err)
		return err
	}
	return nil
}

// cmdRunRun executes the CLI run command and navigates through the following possibilities:
// #1: We will search for either a custom config file (via --config) or the default (mevbuilder.json).
// If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config was used), and we can't find the file, throw an error.
// #3: If mevbuilder.json can't be found, use the default project configuration.
// Secrets are then read from the environment and the env file, and flags are applied last.
func cmdRunRun(cmd *cobra.Command, args []string) error {
	projectConfig, err := resolveProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the run command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		cmdLogger.Error("Failed to run the run command", err)
		return err
	}
	if envFile == "" {
		envFile = DefaultEnvFilename
	}
	secrets, err := config.LoadSecrets(envFile)
	if err != nil {
		cmdLogger.Error("Failed to read secrets", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	secrets.ApplyOverrides(projectConfig)

	// Update the project configuration given whatever flags were set using the CLI
	err = updateProjectConfigWithRunFlags(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the run command", err)
		return err
	}

	s, err := searcher.NewSearcher(*projectConfig, secrets)
	if err != nil {
		cmdLogger.Error("Failed to create the searcher", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	// Stop the searcher on keyboard interrupts and termination requests
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		s.Stop()
	}()

	if err = s.Start(); err != nil {
		cmdLogger.Error("Searcher stopped with an error", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeSearcherError)
	}
	return nil
}

// resolveProjectConfig reads the project configuration named by --config, or the default file in the working
// directory, falling back to the defaults when no file was requested and none exists.
func resolveProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	// Check to see if --config flag was used and store the value of --config flag
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If --config was not used, look for `mevbuilder.json` in the current work directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	// Check to see if the file exists at configPath
	_, existenceError := os.Stat(configPath)

	// Possibility #1: File was found
	if existenceError == nil {
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		return config.ReadProjectConfigFromFile(configPath)
	}

	// Possibility #2: If the --config flag was used, and we couldn't find the file, we'll throw an error
	if configFlagUsed {
		return nil, existenceError
	}

	// Possibility #3: --config flag was not used and mevbuilder.json was not found, so use the default project config
	cmdLogger.Warn(fmt.Sprintf("Unable to find the config file at %v, will use the default project configuration instead", configPath))
	return config.GetDefaultProjectConfig(), nil
}
