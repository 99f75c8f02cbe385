// Package main provides the Pulse activator service: it consumes inbound
// domain events, matches them against active workflows, and dispatches
// guard-approved executions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v3"

	"github.com/pulsehq/pulse-workflows/pkg/activator"
	"github.com/pulsehq/pulse-workflows/pkg/cmd"
	"github.com/pulsehq/pulse-workflows/pkg/log"
	"github.com/pulsehq/pulse-workflows/pkg/metrics"
)

func main() {
	command := &cli.Command{
		Name:                  "pulse-activator",
		Usage:                 "Start the Pulse activator service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "activator-id",
				Aliases: []string{"id"},
				Usage:   "Custom activator ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ACTIVATOR_ID"),
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
				Name:    "redis-url",
				Usage:   "Redis URL backing the dispatch guard",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Listen address for the Prometheus endpoint",
				Value:   ":9091",
				Sources: cli.EnvVars("METRICS_ADDR"),
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

	activatorID := command.String("activator-id")
	if activatorID == "" {
		activatorID = "activator-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("pulse-activator").With("activator_id", activatorID)
	logger.InfoContext(ctx, "Initializing Pulse Activator")

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close workflow event bus", "error", err)
		}
	}()

	triggerBus := cmd.NewTriggerEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := triggerBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close trigger event bus", "error", err)
		}
	}()

	dispatchGuard := cmd.NewGuard(command.String("redis-url"), logger)

	registry := prometheus.NewRegistry()
	serveMetrics(command.String("metrics-addr"), registry, logger)

	act := activator.NewActivator(
		persistence,
		dispatchGuard,
		eventBus,
		metrics.New(registry),
		logger,
	)

	if err := triggerBus.HandleTriggerEvents(act.HandleTriggerEvent); err != nil {
		return fmt.Errorf("failed to register trigger event handler: %w", err)
	}

	logger.InfoContext(ctx, "Consuming trigger events")

	return triggerBus.SubscribeToTriggerEvents(ctx)
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics endpoint stopped", "error", err)
		}
	}()
}
