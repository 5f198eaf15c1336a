package cli

import (
	"fmt"

	"github.com/rustyeddy/carry/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage carry configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  carry config init -o carry.yaml
  carry config validate -f carry.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Long: `Create a new configuration file with default settings. The format follows
the extension: .yaml/.yml, .toml, or JSON otherwise. The API token is never
written; supply it through CARRY_OANDA_TOKEN.

Example:
  carry config init -o carry.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nSet account.id, then run with:")
			fmt.Fprintf(out, "  CARRY_OANDA_TOKEN=... carry --config %s accumulate\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "carry.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Check that a configuration file loads and holds usable values. Credentials
are not required here since they normally come from the environment.

Example:
  carry config validate -f carry.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = rc.ConfigPath
			}
			if path == "" {
				return fmt.Errorf("no config file given (use -f or --config)")
			}
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(out, "  Account: %s (%s, %s)\n", cfg.Account.ID, cfg.Account.Tier, cfg.Account.HomeCurrency)
			fmt.Fprintf(out, "  Strategy: %v (leverage %.2f, monthly %d)\n", cfg.Strategy.Instruments, cfg.Strategy.Leverage, cfg.Strategy.MonthlyAmount)
			fmt.Fprintf(out, "  Protect: threshold %.0f%%, top %d\n", cfg.Protect.ThresholdPct, cfg.Protect.TopN)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
