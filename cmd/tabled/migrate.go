package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Create or upgrade the schema of the configured store.

The memory driver has no schema and this command does nothing for it.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cmd.Context(), cfg.Database)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	defer st.Close()

	if err := migrate(cmd.Context(), st); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	slog.Info("migrations applied", "driver", cfg.Database.Driver)
	fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
	return nil
}
