// Package task provides the create_task and assign_resource action handlers.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
	"github.com/pulsehq/pulse-workflows/pkg/template"
)

const (
	ActionTypeCreateTask     = "create_task"
	ActionTypeAssignResource = "assign_resource"
)

// CreateTaskAction files a follow-up task for a staff member.
type CreateTaskAction struct {
	writer      protocol.TaskWriter
	assignee    string
	title       string
	description string
}

func NewCreateTaskAction(writer protocol.TaskWriter, config map[string]any) (*CreateTaskAction, error) {
	assignee, ok := config["assignee"].(string)
	if !ok || assignee == "" {
		return nil, errors.New("missing required field 'assignee'")
	}

	title, ok := config["title"].(string)
	if !ok || title == "" {
		return nil, errors.New("missing required field 'title'")
	}

	description, _ := config["description"].(string)

	return &CreateTaskAction{
		writer:      writer,
		assignee:    assignee,
		title:       title,
		description: description,
	}, nil
}

func (a *CreateTaskAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	rendered, err := template.RenderConfig(map[string]any{
		"assignee":    a.assignee,
		"title":       a.title,
		"description": a.description,
	}, &executionCtx)
	if err != nil {
		return nil, err
	}

	assignee := fmt.Sprintf("%v", rendered["assignee"])

	logger.Info("Creating task", "assignee", assignee)

	return a.writer.CreateTask(
		ctx,
		executionCtx.OrgID,
		assignee,
		fmt.Sprintf("%v", rendered["title"]),
		fmt.Sprintf("%v", rendered["description"]),
	)
}

// AssignResourceAction assigns a learning resource to a learner.
type AssignResourceAction struct {
	writer     protocol.TaskWriter
	learner    string
	resourceID string
}

func NewAssignResourceAction(writer protocol.TaskWriter, config map[string]any) (*AssignResourceAction, error) {
	learner, ok := config["learner"].(string)
	if !ok || learner == "" {
		return nil, errors.New("missing required field 'learner'")
	}

	resourceID, ok := config["resource_id"].(string)
	if !ok || resourceID == "" {
		return nil, errors.New("missing required field 'resource_id'")
	}

	return &AssignResourceAction{writer: writer, learner: learner, resourceID: resourceID}, nil
}

func (a *AssignResourceAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	rendered, err := template.RenderConfig(map[string]any{
		"learner":     a.learner,
		"resource_id": a.resourceID,
	}, &executionCtx)
	if err != nil {
		return nil, err
	}

	learner := fmt.Sprintf("%v", rendered["learner"])
	resourceID := fmt.Sprintf("%v", rendered["resource_id"])

	logger.Info("Assigning resource", "learner", learner, "resource_id", resourceID)

	return a.writer.AssignResource(ctx, executionCtx.OrgID, learner, resourceID)
}
