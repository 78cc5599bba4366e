package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quote-pricing/db"
	"quote-pricing/internal/config"
	"quote-pricing/internal/logging"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply reference-database schema migrations",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Logging())
			if err != nil {
				return err
			}
			defer log.Sync()

			conn, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.Migrate(conn); err != nil {
				return err
			}
			log.Info("migrations applied", zap.String("database", cfg.DatabasePath))
			return nil
		},
	}
}
