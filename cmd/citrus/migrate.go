package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/citrusbot/citrus/internal/logging"
	"github.com/citrusbot/citrus/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := store.WaitForDatabase(cfg.DatabaseURL, 10, time.Second); err != nil {
		return err
	}
	if err := store.RunMigrations(cfg.DatabaseURL, migrationsPath()); err != nil {
		return err
	}
	l := logging.L()
	l.Info().Msg("migrations applied")
	return nil
}
