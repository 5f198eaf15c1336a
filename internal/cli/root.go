package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RootConfig holds the persistent flags shared by every subcommand.
type RootConfig struct {
	ConfigPath string
	LogLevel   string
	Paper      bool
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:   "carry",
		Short: "FX carry accumulation and margin protection",
		Long: `carry builds a hedged carry basket (USD_JPY long, USD_MXN short, TRY_JPY long)
a little every business day, reinvests the daily swap, and closes the worst
lots when the maintenance ratio falls under the protection threshold.

Each job runs once and exits; schedule it with cron or similar.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().BoolVar(&rc.Paper, "paper", false, "Trade against an in-memory account seeded from the config")

	cmd.AddCommand(
		newAccumulateCmd(rc),
		newCompoundCmd(rc),
		newProtectCmd(rc),
		newSessionCmd(rc),
		newConfigCmd(rc),
		newVersionCmd(),
	)

	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
