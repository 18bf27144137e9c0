package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/sweeptower/pkg/config"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for sweeptower.

Bash:
  $ source <(sweeptower completion bash)

Zsh:
  $ sweeptower completion zsh > "${fpath[1]}/_sweeptower"

Fish:
  $ sweeptower completion fish > ~/.config/fish/completions/sweeptower.fish

PowerShell:
  PS> sweeptower completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

// fixedCompletion offers a closed set of flag values.
func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// registerFlagCompletions wires value completion for enumerated flags.
// Missing flags are skipped so each command can share the helper.
func registerFlagCompletions(cmd *cobra.Command) {
	enums := map[string][]string{
		"transport": {config.TransportLocal, config.TransportRedis},
		"format":    {formatDOT, formatSVG},
	}
	for name, values := range enums {
		if cmd.Flags().Lookup(name) != nil {
			_ = cmd.RegisterFlagCompletionFunc(name, fixedCompletion(values...))
		}
	}
	if cmd.Flags().Lookup("output") != nil {
		_ = cmd.MarkFlagFilename("output", formatDOT, formatSVG)
	}
}
