// Mlinzi is a self-hosted Telegram bot for operating the host it runs on.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jkaninda/mlinzi/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mlinzi",
	Short: "Mlinzi is a Telegram bot for operating the host it runs on.",
	Long: `Mlinzi answers a small set of operator commands over Telegram: host
diagnostics, shell and Go snippet execution, and stop, restart and
self-update from Git. Only allowlisted Telegram users are served.`,
	RunE:          runBot, // Default to running the bot.
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(runCmd, pendingCmd, versionCmd)
	_ = godotenv.Load()

	// `mlinzi --config path` and `mlinzi run --config path` both work.
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
