package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/carimport/internal/config"
	_ "github.com/JonMunkholm/carimport/internal/core/tables" // Register all tables
	"github.com/JonMunkholm/carimport/internal/logging"
)

// noConfig marks commands that run without loading configuration.
const noConfig = "no-config"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "carimport",
	Short: "Import vehicle listing CSV exports into the inventory database",
	Long: "Reads dealer CSV exports, normalizes German number and date formats, " +
		"matches vehicles by VIN or internal number and upserts them in one transaction per file.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if _, skip := cmd.Annotations[noConfig]; skip {
			return nil
		}

		// Overload so a local .env wins over the shell environment.
		envErr := godotenv.Overload()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		logging.SetupTo(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
		if envErr != nil {
			slog.Debug("no .env file loaded", "error", envErr)
		}
		slog.Debug("configuration loaded", "config", cfg.String())
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
