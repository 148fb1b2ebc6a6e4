package cli

import (
	"context"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/urfave/cli/v3"
)

func generateCommand() *cli.Command {
	var (
		cfg       config
		date      string
		noSpinner bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "date",
			Usage:       "Day to generate the report for (YYYY-MM-DD, default: yesterday in UTC)",
			Sources:     cli.EnvVars("AINEWS_DATE"),
			Destination: &date,
		},
		&cli.BoolFlag{
			Name:        "no-spinner",
			Usage:       "Do not show the progress spinner",
			Sources:     cli.EnvVars("AINEWS_NO_SPINNER"),
			Destination: &noSpinner,
		},
	}
	flags = append(flags, reportCommandFlags(&cfg)...)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate the daily report of a day, replacing any stored one",
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

			if !noSpinner {
				s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.Root().ErrWriter))
				s.Suffix = " generating report for " + model.DateLabel(day)
				s.Start()
				defer s.Stop()
			}

			outcome := uc.Generate(ctx, day)
			return printOutcome(c.Root().Writer, outcome)
		},
	}
}
