// Package editor backs the visual canvas: debounced autosave of the graph
// document and layout helpers for structural edits.
package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

// DefaultDebounce is the trailing quiet period before a staged graph is
// written.
const DefaultDebounce = 2 * time.Second

const saveTimeout = 10 * time.Second

type graphSnapshot struct {
	nodes []*models.Node
	edges []*models.Edge
}

// Session debounces canvas edits for one workflow. Every Stage replaces
// the pending snapshot wholesale, so the write that eventually lands is
// always the latest full document: intermediate states are never persisted
// and last write wins.
type Session struct {
	workflowID string
	workflows  persistence.WorkflowRepository
	logger     *slog.Logger
	debounce   time.Duration

	mu      sync.Mutex
	pending *graphSnapshot
	timer   *time.Timer
	lastErr error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDebounce overrides the trailing debounce window.
func WithDebounce(d time.Duration) SessionOption {
	return func(s *Session) {
		s.debounce = d
	}
}

func NewSession(workflowID string, workflows persistence.WorkflowRepository, logger *slog.Logger, opts ...SessionOption) *Session {
	session := &Session{
		workflowID: workflowID,
		workflows:  workflows,
		logger:     logger.With("module", "editor_session", "workflow_id", workflowID),
		debounce:   DefaultDebounce,
	}

	for _, opt := range opts {
		opt(session)
	}

	return session
}

// Stage records the latest canvas state and (re)arms the debounce timer.
func (s *Session) Stage(nodes []*models.Node, edges []*models.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &graphSnapshot{nodes: nodes, edges: edges}

	if s.timer != nil {
		s.timer.Stop()
	}

	s.timer = time.AfterFunc(s.debounce, s.flushPending)
}

func (s *Session) flushPending() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.Flush(ctx); err != nil {
		s.logger.Error("Autosave failed", "error", err)
	}
}

// Flush writes the pending snapshot immediately. A no-op when nothing is
// staged.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()

	snapshot := s.pending
	s.pending = nil

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if snapshot == nil {
		return nil
	}

	err := s.workflows.SaveGraph(ctx, s.workflowID, snapshot.nodes, snapshot.edges)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	return err
}

// LastError returns the outcome of the most recent save.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// Close flushes any pending edit and stops the timer.
func (s *Session) Close(ctx context.Context) error {
	return s.Flush(ctx)
}
