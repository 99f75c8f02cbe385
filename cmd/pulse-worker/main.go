// Package main provides the Pulse worker service: it consumes workflow
// dispatch events, runs executions through the engine, and resumes
// executions parked on delay nodes.
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

	"github.com/pulsehq/pulse-workflows/pkg/cmd"
	"github.com/pulsehq/pulse-workflows/pkg/engine"
	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/log"
	"github.com/pulsehq/pulse-workflows/pkg/metrics"
	"github.com/pulsehq/pulse-workflows/pkg/otelhelper"
	"github.com/pulsehq/pulse-workflows/pkg/scheduler"
	"github.com/pulsehq/pulse-workflows/pkg/worker"
)

func main() {
	command := &cli.Command{
		Name:                  "pulse-worker",
		Usage:                 "Start workers to execute workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
				Value:   ":9092",
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

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("pulse-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing Pulse Worker")

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	dispatchGuard := cmd.NewGuard(command.String("redis-url"), logger)
	dispatcher := worker.NewDispatcher(persistence, dispatchGuard, eventBus, logger)
	registry := cmd.NewRegistry(logger, dispatcher)
	eng := engine.NewEngine(persistence, registry, eventBus, logger)

	tracer, err := otelhelper.NewTracer(ctx, "pulse-worker")
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)
		tracer = nil
	}

	promRegistry := prometheus.NewRegistry()
	serveMetrics(command.String("metrics-addr"), promRegistry, logger)

	w := worker.NewWorker(eng, metrics.New(promRegistry), tracer, logger)

	// Delay resumption rides with the worker: the poller picks up waiting
	// executions whose resume time elapsed and feeds them back through the
	// engine.
	poller := scheduler.NewResumePoller(persistence, w, logger)

	go func() {
		if err := poller.Run(ctx); err != nil {
			logger.ErrorContext(ctx, "Resume poller stopped", "error", err)
		}
	}()

	if err := eventBus.Handle(events.WorkflowTriggeredEvent, w.HandleWorkflowTriggered); err != nil {
		return fmt.Errorf("failed to register dispatch handler: %w", err)
	}

	logger.InfoContext(ctx, "Consuming workflow dispatch events")

	return eventBus.Subscribe(ctx)
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
