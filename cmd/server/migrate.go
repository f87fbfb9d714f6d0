package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrjais/basestore/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage != "postgres" {
			return fmt.Errorf("migrate requires postgres storage, configured storage is '%s'", cfg.Storage)
		}
		return migrations.RunMigrations(cfg.PostgresURL)
	},
}
