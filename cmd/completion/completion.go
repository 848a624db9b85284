// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for VExcel.

Install instructions:
  Bash:       vexcel completion bash > /etc/bash_completion.d/vexcel
              echo 'source <(vexcel completion bash)' >> ~/.bashrc
  Zsh:        vexcel completion zsh > ~/.zsh/completions/_vexcel
  Fish:       vexcel completion fish > ~/.config/fish/completions/vexcel.fish
  PowerShell: vexcel completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				fmt.Fprintln(out, "# VExcel bash completion")
				fmt.Fprintln(out, "# Install: vexcel completion bash > /etc/bash_completion.d/vexcel")
				fmt.Fprintln(out, "# Or:      echo 'source <(vexcel completion bash)' >> ~/.bashrc")
				fmt.Fprintln(out)
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				fmt.Fprintln(out, "# VExcel zsh completion")
				fmt.Fprintln(out, "# Install: vexcel completion zsh > ~/.zsh/completions/_vexcel")
				fmt.Fprintln(out)
				return rootCmd.GenZshCompletion(out)
			case "fish":
				fmt.Fprintln(out, "# VExcel fish completion")
				fmt.Fprintln(out, "# Install: vexcel completion fish > ~/.config/fish/completions/vexcel.fish")
				fmt.Fprintln(out)
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				fmt.Fprintln(out, "# VExcel PowerShell completion")
				fmt.Fprintln(out, "# Install: vexcel completion powershell >> $PROFILE")
				fmt.Fprintln(out)
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", args[0])
			}
		},
	}
	return cmd
}
