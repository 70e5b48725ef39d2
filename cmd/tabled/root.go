package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabled/internal/config"
	"github.com/JonMunkholm/tabled/internal/logging"
)

var (
	// Global flags
	envFile string
	actAs   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tabled",
	Short: "Runtime-defined tables with sale and rental inventory",
	Long: `tabled stores rows against tables whose columns are defined at runtime,
and layers sales and rentals with an inventory ledger on top of them.

Configuration comes from the environment, optionally seeded from a .env file.

Commands:
  tabled serve                      # Start the HTTP API
  tabled migrate                    # Apply database migrations
  tabled validate <table-id>        # Report invalid rows of a table
  tabled import <table-id> <file>   # Import a CSV file into a table`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&actAs, "user", "", "user id that owns the tables touched by validate and import")
}

// loadConfig loads the dotenv file, when present, and the configuration,
// then sets up logging.
func loadConfig() (*config.Config, error) {
	// Overload overwrites existing env vars
	if err := godotenv.Overload(envFile); err != nil {
		slog.Debug("no .env file loaded, using environment variables", "file", envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
