package cli

import (
	"context"

	"github.com/m3-org/ainews/pkg/model"
	"github.com/urfave/cli/v3"
)

func reconcileCommand() *cli.Command {
	var (
		cfg  config
		date string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "date",
			Usage:       "Day of the stored report (YYYY-MM-DD, default: yesterday in UTC)",
			Sources:     cli.EnvVars("AINEWS_DATE"),
			Destination: &date,
		},
	}
	flags = append(flags, reportCommandFlags(&cfg)...)

	return &cli.Command{
		Name:  "reconcile",
		Usage: "Rewrite the report files of a day from its stored record when they differ",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err := cfg.applyFile(c); err != nil {
				return err
			}

			day, err := parseDateFlag(date)
			if err != nil {
				return err
			}

			uc, closeRepo, err := cfg.newReport(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			result, err := uc.ReconcileDate(ctx, day)
			if err != nil {
				return err
			}
			printReconcile(c.Root().Writer, model.DateLabel(day), result)
			return nil
		},
	}
}
