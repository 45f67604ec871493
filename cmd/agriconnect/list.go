package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"

	"github.com/urfave/cli/v2"
)

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "List stored submissions, newest first",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "status",
			Usage: "Only show Pending, Verified or Rejected submissions",
		},
		&cli.StringFlag{
			Name:  "farmer",
			Usage: "Only show submissions of this farmer id",
		},
	},
	Action: func(cCtx *cli.Context) error {
		cfg, err := loadConfig(cCtx)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := context.Background()
		workflow, closeStore, err := openWorkflow(ctx, cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer closeStore()

		filter := types.SubmissionFilter{FarmerID: cCtx.String("farmer")}
		if v := cCtx.String("status"); v != "" {
			status, err := types.ParseSubmissionStatus(v)
			if err != nil {
				return err
			}
			filter.Status = status
		}

		subs, err := workflow.List(ctx, cliOfficial, filter)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFARMER\tSTATE\tSUBMITTED\tCROP\tHEALTH\tCONF\tSTATUS\tVERIFIER")
		for _, s := range subs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
				s.ID, s.FarmerName, s.State, s.Timestamp.Format("2006-01-02 15:04"),
				s.DetectedCrop, s.DetectedHealth, s.Confidence, s.Status, utils.PtrString(s.VerifiedBy))
		}
		return tw.Flush()
	},
}
