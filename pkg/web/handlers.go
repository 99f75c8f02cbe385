// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pulsehq/pulse-workflows/pkg/editor"
	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
	"github.com/pulsehq/pulse-workflows/pkg/registry"
	"github.com/pulsehq/pulse-workflows/pkg/services"
)

type APIHandlers struct {
	workflowService   *services.Workflow
	activationService *services.Activation
	executionService  *services.Execution
	firingService     *services.Firing
	workflows         persistence.WorkflowRepository
	validator         *validator.Validate
	registry          *registry.Registry
	logger            *slog.Logger

	// One autosave session per open canvas. Sessions debounce bursts of
	// save posts so each editing pause writes once.
	mu       sync.Mutex
	sessions map[string]*editor.Session
	options  []editor.SessionOption
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	activationService *services.Activation,
	executionService *services.Execution,
	firingService *services.Firing,
	workflows persistence.WorkflowRepository,
	validator *validator.Validate,
	registry *registry.Registry,
	logger *slog.Logger,
	sessionOptions ...editor.SessionOption,
) *APIHandlers {
	return &APIHandlers{
		workflowService:   workflowService,
		activationService: activationService,
		executionService:  executionService,
		firingService:     firingService,
		workflows:         workflows,
		validator:         validator,
		registry:          registry,
		logger:            logger.With("module", "api"),
		sessions:          make(map[string]*editor.Session),
		options:           sessionOptions,
	}
}

// orgID resolves the calling organization. Every route is tenant-scoped.
func orgID(c fiber.Ctx) string {
	if org := c.Get("X-Org-ID"); org != "" {
		return org
	}

	return c.Query("org_id")
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListWorkflowsRequest parses and validates query parameters for listing workflows.
func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{OrgID: orgID(c)}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	req.TriggerType = c.Query("trigger_type")
	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), orgID(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	org := orgID(c)
	if org == "" {
		return badRequest(c, "Organization ID is required")
	}

	workflow := &models.Workflow{
		OrgID:         org,
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		Mode:          req.Mode,
		Settings:      req.Settings,
		Nodes:         []*models.Node{},
		Edges:         []*models.Edge{},
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// SaveWorkflowGraph is the editor autosave endpoint. The body carries the
// node and edge document and nothing else. Writes are debounced per
// workflow, so a burst of saves lands as one persisted document.
func (h *APIHandlers) SaveWorkflowGraph(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req SaveGraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), orgID(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return handleServiceError(c, services.ErrWorkflowImmutable)
	}

	session := h.sessionFor(id)
	if err := session.LastError(); err != nil {
		return internalError(c, err)
	}

	session.Stage(req.Nodes, req.Edges)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "accepted",
	})
}

func (h *APIHandlers) sessionFor(workflowID string) *editor.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, ok := h.sessions[workflowID]
	if !ok {
		session = editor.NewSession(workflowID, h.workflows, h.logger, h.options...)
		h.sessions[workflowID] = session
	}

	return session
}

func (h *APIHandlers) closeSession(ctx context.Context, workflowID string) {
	h.mu.Lock()
	session, ok := h.sessions[workflowID]
	delete(h.sessions, workflowID)
	h.mu.Unlock()

	if ok {
		if err := session.Close(ctx); err != nil {
			h.logger.Error("Failed to flush editor session", "workflow_id", workflowID, "error", err)
		}
	}
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	h.closeSession(c.Context(), id)

	if err := h.workflowService.Archive(c.Context(), orgID(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	// Flush any staged edits so activation validates the latest document.
	h.closeSession(c.Context(), id)

	workflow, err := h.activationService.Activate(c.Context(), orgID(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.activationService.Pause(c.Context(), orgID(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) FireWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req FireNowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	event, err := h.firingService.FireNow(c.Context(), orgID(c), id, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"event_id": event.ID,
	})
}

// ScaffoldBranch returns placeholder children for a branch node, one per
// configured branch, positioned for the canvas.
func (h *APIHandlers) ScaffoldBranch(c fiber.Ctx) error {
	id := c.Params("id")
	nodeID := c.Params("nodeId")

	if id == "" || nodeID == "" {
		return badRequest(c, "Workflow ID and node ID are required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), orgID(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return notFound(c, "Node not found")
	}

	nodes, edges, err := editor.BranchScaffold(node)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.JSON(fiber.Map{
		"nodes": nodes,
		"edges": edges,
	})
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	executions, err := h.executionService.ListByWorkflow(c.Context(), orgID(c), id, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	summaries := make([]ExecutionSummary, 0, len(executions))
	for _, execution := range executions {
		summaries = append(summaries, TransformExecutionSummary(execution))
	}

	return c.JSON(fiber.Map{
		"executions": summaries,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.FetchByID(c.Context(), orgID(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.executionService.Cancel(c.Context(), orgID(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Pulse API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Pulse API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
