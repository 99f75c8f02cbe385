// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/actions/email"
	"github.com/pulsehq/pulse-workflows/pkg/actions/messaging"
	"github.com/pulsehq/pulse-workflows/pkg/actions/notification"
	"github.com/pulsehq/pulse-workflows/pkg/actions/task"
	"github.com/pulsehq/pulse-workflows/pkg/actions/webhook"
	"github.com/pulsehq/pulse-workflows/pkg/actions/workflowtrigger"
	"github.com/pulsehq/pulse-workflows/pkg/gateway"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
	"github.com/pulsehq/pulse-workflows/pkg/registry"
)

// NewRegistry builds the full action registry. Vendor gateways are not part
// of this module, so outbound actions run against the console gateway until
// real implementations are injected. A nil dispatcher leaves the
// trigger_workflow action unregistered; the API validates action types on
// activation, so that is only appropriate for processes that never execute.
func NewRegistry(log *slog.Logger, dispatcher protocol.WorkflowDispatcher) *registry.Registry {
	reg := registry.NewRegistry(log)
	console := gateway.NewConsole(log)

	reg.RegisterAction(messaging.NewSMSFactory(console))
	reg.RegisterAction(messaging.NewWhatsAppFactory(console))
	reg.RegisterAction(messaging.NewCallFactory(console))
	reg.RegisterAction(email.NewFactory(console))
	reg.RegisterAction(notification.NewFactory(console))
	reg.RegisterAction(task.NewCreateTaskFactory(console))
	reg.RegisterAction(task.NewAssignResourceFactory(console))
	reg.RegisterAction(webhook.NewFactory())

	if dispatcher != nil {
		reg.RegisterAction(workflowtrigger.NewFactory(dispatcher))
	}

	return reg
}
