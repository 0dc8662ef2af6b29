package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"qline/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Миграции базы данных",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Применить все новые миграции",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if err := storage.MigrateUp(cfg.DatabaseURL()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrate up: ok")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Показать состояние миграций",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		return storage.MigrationStatus(cfg.DatabaseURL())
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
