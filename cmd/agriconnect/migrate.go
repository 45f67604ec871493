package main

import (
	"context"
	"fmt"

	"agriconnect/internal/db"

	"github.com/urfave/cli/v2"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Create the submission tables for the configured store",
	Action: func(cCtx *cli.Context) error {
		cfg, err := loadConfig(cCtx)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger := newLogger(cfg)
		ctx := context.Background()

		if cfg.StoreDriver == "postgres" {
			pool, err := db.Connect(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}

			logger.Info("postgres schema applied")
			return nil
		}

		// The embedded stores create their tables on open.
		_, closeStore, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		closeStore()

		logger.WithField("store", cfg.StoreDriver).Info("store ready")
		return nil
	},
}
