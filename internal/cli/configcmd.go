package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/sweeptower/pkg/config"
)

// configCommand prints the effective configuration as TOML, which doubles
// as a starting point for a config file.
func (c *CLI) configCommand() *cobra.Command {
	var defaults bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Example: `  sweeptower config --defaults > sweep.toml
  sweeptower config -c sweep.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if !defaults {
				var err error
				if cfg, err = c.loadConfig(); err != nil {
					return err
				}
			}
			data, err := cfg.Encode()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "ignore --config and print the built-in defaults")
	return cmd
}
