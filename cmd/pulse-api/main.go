package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v3"

	"github.com/pulsehq/pulse-workflows/pkg/cmd"
	"github.com/pulsehq/pulse-workflows/pkg/log"
)

const defaultPort = 8080

func main() {
	command := &cli.Command{
		Name:                  "pulse-api",
		Usage:                 "Create and manage workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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

	logger := log.WithModule("pulse-api")
	logger.InfoContext(ctx, "Initializing Pulse API")

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

	// The API never executes workflows, so the trigger_workflow action
	// registers without a dispatcher purely for activation-time validation.
	registry := cmd.NewRegistry(logger, noDispatch{})

	api := NewAPI(logger, persistence, registry, triggerBus, prometheus.NewRegistry())

	if err := api.Start(int(command.Int("port"))); err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)
	}

	return nil
}

// noDispatch satisfies the dispatcher contract for processes that validate
// workflows but never run them.
type noDispatch struct{}

func (noDispatch) DispatchWorkflow(context.Context, string, string, map[string]any, int) error {
	return nil
}
