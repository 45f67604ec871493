package main

import (
	"fmt"
	"os"

	"agriconnect/internal/vision"

	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var analyzeCommand = &cli.Command{
	Name:      "analyze",
	Usage:     "Classify crop photos without storing anything",
	ArgsUsage: "PHOTO [PHOTO...]",
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() == 0 {
			return fmt.Errorf("give at least one photo")
		}

		for _, path := range cCtx.Args().Slice() {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			result, format, err := vision.Analyze(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			pp.Println(map[string]any{
				"file":        path,
				"format":      format,
				"crop":        result.Crop,
				"health":      result.Health,
				"confidence":  result.Confidence,
				"diagnostics": result.Features.Diagnostics(),
				"scores":      result.Scores,
			})
		}

		return nil
	},
}
