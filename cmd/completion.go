package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// supportedShells lists the shells completion scripts can be generated for
var supportedShells = []string{"bash", "zsh", "fish", "powershell"}

// completionCmd represents the completion command
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate the autocompletion script for the specified shell",
	Long: `To load completions:

Bash:

  $ source <(mevbuilder completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ mevbuilder completion bash > /etc/bash_completion.d/mevbuilder

Zsh:

  $ mevbuilder completion zsh > "${fpath[1]}/_mevbuilder"

Fish:

  $ mevbuilder completion fish > ~/.config/fish/completions/mevbuilder.fish`,
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs:             supportedShells,
	DisableFlagsInUseLine: true,
	RunE:                  cmdRunCompletion,
	SilenceUsage:          true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

// cmdRunCompletion writes the completion script for the requested shell to stdout
func cmdRunCompletion(cmd *cobra.Command, args []string) error {
	var err error
	switch args[0] {
	case "bash":
		err = cmd.Root().GenBashCompletionV2(os.Stdout, true)
	case "zsh":
		err = cmd.Root().GenZshCompletion(os.Stdout)
	case "fish":
		err = cmd.Root().GenFishCompletion(os.Stdout, true)
	case "powershell":
		err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
	default:
		err = fmt.Errorf("unsupported shell %q", args[0])
	}
	if err != nil {
		cmdLogger.Error("Failed to generate the completion script", err)
	}
	return err
}
