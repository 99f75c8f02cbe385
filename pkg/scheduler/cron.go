package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pulsehq/pulse-workflows/pkg/eventbus"
	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

const defaultReconcileInterval = time.Minute

// CronScheduler fires schedule-triggered workflows. It reconciles its cron
// entries against the stored workflows so edits, pauses and archives take
// effect without a restart. Each tick publishes a schedule trigger event
// scoped to its workflow; matching and guard checks stay in the activator.
type CronScheduler struct {
	persistence persistence.Persistence
	triggerBus  eventbus.TriggerEventBus
	logger      *slog.Logger
	cron        *cron.Cron
	interval    time.Duration

	mu      sync.Mutex
	entries map[string]cronEntry // workflow id -> active entry
}

type cronEntry struct {
	id   cron.EntryID
	expr string
}

func NewCronScheduler(p persistence.Persistence, triggerBus eventbus.TriggerEventBus, logger *slog.Logger) *CronScheduler {
	return &CronScheduler{
		persistence: p,
		triggerBus:  triggerBus,
		logger:      logger.With("module", "cron_scheduler"),
		interval:    defaultReconcileInterval,
		entries:     make(map[string]cronEntry),
	}
}

// Run reconciles immediately, then keeps reconciling until the context is
// cancelled.
func (s *CronScheduler) Run(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	s.cron.Start()

	defer s.cron.Stop()

	s.Reconcile(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping cron scheduler")

			return ctx.Err()
		case <-ticker.C:
			s.Reconcile(ctx)
		}
	}
}

// Reconcile aligns cron entries with the current set of active schedule
// workflows.
func (s *CronScheduler) Reconcile(ctx context.Context) {
	workflows, err := s.persistence.WorkflowRepository().ListScheduled(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list scheduled workflows", "error", err)

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(workflows))

	for _, workflow := range workflows {
		expr, err := cronExpression(workflow)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping workflow with invalid schedule",
				"workflow_id", workflow.ID, "error", err)

			continue
		}

		seen[workflow.ID] = true

		existing, ok := s.entries[workflow.ID]
		if ok && existing.expr == expr {
			continue
		}

		if ok {
			s.cron.Remove(existing.id)
		}

		entryID, err := s.addJob(workflow, expr)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to schedule workflow",
				"workflow_id", workflow.ID, "cron", expr, "error", err)

			delete(s.entries, workflow.ID)

			continue
		}

		s.entries[workflow.ID] = cronEntry{id: entryID, expr: expr}
		s.logger.InfoContext(ctx, "Scheduled workflow", "workflow_id", workflow.ID, "cron", expr)
	}

	// Drop entries for workflows that were paused, archived or deleted.
	for workflowID, entry := range s.entries {
		if !seen[workflowID] {
			s.cron.Remove(entry.id)
			delete(s.entries, workflowID)
			s.logger.InfoContext(ctx, "Unscheduled workflow", "workflow_id", workflowID)
		}
	}
}

func (s *CronScheduler) addJob(workflow *models.Workflow, expr string) (cron.EntryID, error) {
	workflowID := workflow.ID
	orgID := workflow.OrgID

	return s.cron.AddFunc(expr, func() {
		s.fire(workflowID, orgID, expr)
	})
}

func (s *CronScheduler) fire(workflowID, orgID, expr string) {
	now := time.Now().UTC()

	event := events.NewTriggerEvent(models.TriggerTypeSchedule, orgID, map[string]any{
		"workflow_id": workflowID,
		"cron":        expr,
		"timestamp":   now.Format(time.RFC3339),
	})
	event.Source = "scheduler"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.triggerBus.PublishTriggerEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish schedule tick",
			"workflow_id", workflowID, "error", err)

		return
	}

	s.logger.Debug("Published schedule tick", "workflow_id", workflowID, "cron", expr)
}

func cronExpression(workflow *models.Workflow) (string, error) {
	expr, _ := workflow.TriggerConfig["cron"].(string)
	if expr == "" {
		return "", fmt.Errorf("workflow %s has no cron expression", workflow.ID)
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return "", fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	return expr, nil
}
