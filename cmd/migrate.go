/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/furniro/apiserver/internal/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	migrationsDir string
	downSteps     int
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		dir := migrationsPath(cfg.MigrationsPath)
		if err := db.MigrateUp(db.PostgresURL(cfg.Database), dir); err != nil {
			log.Error("migrate up failed", zap.String("dir", dir), zap.Error(err))
			return err
		}
		log.Info("migrations applied", zap.String("dir", dir))
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		dir := migrationsPath(cfg.MigrationsPath)
		if err := db.MigrateDown(db.PostgresURL(cfg.Database), dir, downSteps); err != nil {
			log.Error("migrate down failed", zap.String("dir", dir), zap.Error(err))
			return err
		}
		log.Info("migrations rolled back", zap.String("dir", dir), zap.Int("steps", downSteps))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "", "Migrations directory (defaults to MIGRATIONS_PATH)")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "Number of migrations to roll back, 0 for all")
}

func migrationsPath(fromConfig string) string {
	if migrationsDir != "" {
		return migrationsDir
	}
	return fromConfig
}
