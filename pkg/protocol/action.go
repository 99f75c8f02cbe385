// Package protocol defines the interfaces and contracts for pluggable action handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

// Action executes one configured outbound action against the current
// execution context and returns an output payload to store in the node's
// result.
type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory creates action instances and provides metadata about the
// action type. The registry keys factories by ID so adding an action type
// is a compile-time-checked extension, not a string-matched branch.
type ActionFactory interface {
	// Create creates a new action instance with the given node configuration
	Create(config map[string]any) (Action, error)

	// ID returns the unique identifier for this action type
	ID() string

	// Name returns the human-readable name for this action type
	Name() string

	// Description returns a description of what this action does
	Description() string

	// Schema returns the JSON schema for configuring this action
	Schema() map[string]any
}
