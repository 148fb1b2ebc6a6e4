package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/utils/logging"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

// DefaultSchedule runs the daily pipeline at 01:30 UTC
const DefaultSchedule = "30 1 * * *"

func runCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "run",
		Usage: "Generate yesterday's report, or reconcile its files if it already exists",
		Flags: reportCommandFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err := cfg.applyFile(c); err != nil {
				return err
			}

			uc, closeRepo, err := cfg.newReport(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			return printOutcome(c.Root().Writer, uc.Run(ctx))
		},
	}
}

func scheduleCommand() *cli.Command {
	var (
		cfg      config
		schedule string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "cron",
			Usage:       "Cron expression (UTC) of the daily run",
			Value:       DefaultSchedule,
			Sources:     cli.EnvVars("AINEWS_CRON"),
			Destination: &schedule,
		},
	}
	flags = append(flags, reportCommandFlags(&cfg)...)

	return &cli.Command{
		Name:  "schedule",
		Usage: "Run the daily pipeline on a cron schedule until interrupted",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err := cfg.applyFile(c); err != nil {
				return err
			}
			logger := logging.From(ctx)

			uc, closeRepo, err := cfg.newReport(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			scheduler := cron.New(cron.WithLocation(time.UTC))
			if _, err := scheduler.AddFunc(schedule, func() {
				outcome := uc.Run(ctx)
				if outcome.Failed() {
					logger.Error("scheduled run failed", "date", outcome.Date, "error", outcome.Err)
					return
				}
				logger.Info("scheduled run finished", "date", outcome.Date, "status", outcome.Status)
			}); err != nil {
				return goerr.Wrap(err, "invalid cron expression", goerr.V("cron", schedule))
			}

			scheduler.Start()
			logger.Info("scheduler started", "cron", schedule)

			<-ctx.Done()
			logger.Info("stopping scheduler")
			<-scheduler.Stop().Done()
			return nil
		},
	}
}
