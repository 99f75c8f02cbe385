// Package scheduler hosts the two time-driven loops: resuming delayed
// executions and firing schedule-triggered workflows.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultResumeBatch  = 50
)

// Resumer continues one waiting execution. The worker's engine implements
// this.
type Resumer interface {
	Resume(ctx context.Context, executionID string) error
}

// ResumePoller periodically scans for waiting executions whose delay has
// elapsed and hands each to the resumer. One bad execution never stalls
// the rest of the batch.
type ResumePoller struct {
	persistence persistence.Persistence
	resumer     Resumer
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	now         func() time.Time
}

// PollerOption configures a ResumePoller.
type PollerOption func(*ResumePoller)

func WithPollInterval(interval time.Duration) PollerOption {
	return func(p *ResumePoller) {
		p.interval = interval
	}
}

func WithBatchSize(size int) PollerOption {
	return func(p *ResumePoller) {
		p.batchSize = size
	}
}

func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *ResumePoller) {
		p.now = now
	}
}

func NewResumePoller(p persistence.Persistence, resumer Resumer, logger *slog.Logger, opts ...PollerOption) *ResumePoller {
	poller := &ResumePoller{
		persistence: p,
		resumer:     resumer,
		logger:      logger.With("module", "resume_poller"),
		interval:    defaultPollInterval,
		batchSize:   defaultResumeBatch,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(poller)
	}

	return poller
}

// Run polls until the context is cancelled.
func (p *ResumePoller) Run(ctx context.Context) error {
	p.logger.Info("Starting resume poller", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping resume poller")

			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick processes one batch of due executions.
func (p *ResumePoller) Tick(ctx context.Context) {
	due, err := p.persistence.ExecutionRepository().DueWaiting(ctx, p.now(), p.batchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list due executions", "error", err)

		return
	}

	if len(due) == 0 {
		return
	}

	p.logger.InfoContext(ctx, "Resuming due executions", "count", len(due))

	for _, execution := range due {
		if err := p.resumer.Resume(ctx, execution.ID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to resume execution",
				"execution_id", execution.ID,
				"workflow_id", execution.WorkflowID,
				"error", err)
		}
	}
}
