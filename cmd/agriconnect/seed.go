package main

import (
	"context"
	"fmt"
	"time"

	"agriconnect/internal/seed"

	"github.com/urfave/cli/v2"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Submit synthetic field photos through the workflow",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "Number of submissions to create",
			Value:   25,
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "Random seed; 0 picks one from the clock",
		},
	},
	Action: func(cCtx *cli.Context) error {
		cfg, err := loadConfig(cCtx)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := context.Background()
		logger := newLogger(cfg)

		workflow, closeStore, err := openWorkflow(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		rngSeed := cCtx.Int64("seed")
		if rngSeed == 0 {
			rngSeed = time.Now().UnixNano()
		}

		logger.WithField("seed", rngSeed).Info("Seeding submissions...")
		if _, err := seed.SeedSubmissions(ctx, workflow, cCtx.Int("count"), rngSeed); err != nil {
			return fmt.Errorf("failed to seed submissions: %w", err)
		}

		logger.Info("Submissions seeded successfully")
		return nil
	},
}
