package main

import (
	"context"
	"fmt"
	"os"

	"agriconnect/internal/report"
	"agriconnect/pkg/types"

	"github.com/urfave/cli/v2"
)

var exportCommand = &cli.Command{
	Name:  "export",
	Usage: "Write verified submissions to an XLSX workbook",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Output file",
			Value:   "verified-records.xlsx",
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

		subs, err := workflow.List(ctx, cliOfficial, types.SubmissionFilter{Status: types.SubmissionStatusVerified})
		if err != nil {
			return err
		}

		out := cCtx.String("out")
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}

		if err := report.WriteVerified(f, subs); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", out, err)
		}

		logger.WithField("file", out).WithField("records", len(subs)).Info("verified records exported")
		return nil
	},
}
