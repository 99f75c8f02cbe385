// Package main provides the Pulse scheduler service: it keeps one cron
// entry registered per active schedule-triggered workflow and publishes a
// trigger event on each tick.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/pulsehq/pulse-workflows/pkg/cmd"
	"github.com/pulsehq/pulse-workflows/pkg/log"
	"github.com/pulsehq/pulse-workflows/pkg/scheduler"
)

func main() {
	command := &cli.Command{
		Name:                  "pulse-scheduler",
		Usage:                 "Start the Pulse schedule tick publisher",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheduler-id",
				Aliases: []string{"id"},
				Usage:   "Custom scheduler ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	schedulerID := command.String("scheduler-id")
	if schedulerID == "" {
		schedulerID = "scheduler-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("pulse-scheduler").With("scheduler_id", schedulerID)
	logger.InfoContext(ctx, "Initializing Pulse Scheduler")

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	triggerBus := cmd.NewTriggerEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := triggerBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close trigger event bus", "error", err)
		}
	}()

	return scheduler.NewCronScheduler(persistence, triggerBus, logger).Run(ctx)
}
