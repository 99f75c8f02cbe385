package task

import (
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
)

type createTaskFactory struct {
	writer protocol.TaskWriter
}

func (f *createTaskFactory) ID() string   { return ActionTypeCreateTask }
func (f *createTaskFactory) Name() string { return "Create Task" }

func (f *createTaskFactory) Description() string {
	return "Files a follow-up task for a staff member."
}

func (f *createTaskFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewCreateTaskAction(f.writer, config)
}

func (f *createTaskFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"assignee":    map[string]any{"type": "string", "description": "Staff member id or role. Supports templating."},
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
		},
		"required": []string{"assignee", "title"},
	}
}

// NewCreateTaskFactory creates the create_task action factory.
func NewCreateTaskFactory(writer protocol.TaskWriter) protocol.ActionFactory {
	return &createTaskFactory{writer: writer}
}

type assignResourceFactory struct {
	writer protocol.TaskWriter
}

func (f *assignResourceFactory) ID() string   { return ActionTypeAssignResource }
func (f *assignResourceFactory) Name() string { return "Assign Resource" }

func (f *assignResourceFactory) Description() string {
	return "Assigns a learning resource to a learner."
}

func (f *assignResourceFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAssignResourceAction(f.writer, config)
}

func (f *assignResourceFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"learner":     map[string]any{"type": "string", "description": "Learner id. Supports templating."},
			"resource_id": map[string]any{"type": "string"},
		},
		"required": []string{"learner", "resource_id"},
	}
}

// NewAssignResourceFactory creates the assign_resource action factory.
func NewAssignResourceFactory(writer protocol.TaskWriter) protocol.ActionFactory {
	return &assignResourceFactory{writer: writer}
}
