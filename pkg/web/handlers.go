// Package web provides HTTP handlers and REST API endpoints for automations and lead runs.
package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/registry"
	"github.com/dukex/leadflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	automationService *services.Automation
	leadService       *services.Lead
	validator         *validator.Validate
	registry          *registry.Registry
}

func NewAPIHandlers(
	automationService *services.Automation,
	leadService *services.Lead,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		automationService: automationService,
		leadService:       leadService,
		validator:         validator,
		registry:          registry,
	}
}

// Routes mounts every endpoint on the router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/action-types", h.GetActionTypes)

	a := router.Group("/automations")
	a.Get("/", h.GetAutomations)
	a.Post("/", h.CreateAutomation)
	a.Get("/:id", h.GetAutomation)
	a.Put("/:id", h.SaveAutomation)
	a.Delete("/:id", h.DeleteAutomation)

	l := router.Group("/leads")
	l.Post("/:id/enter", h.EnterColumn)
	l.Get("/:id/current-action", h.GetCurrentAction)

	p := router.Group("/pauses")
	p.Get("/", h.GetPauses)
	p.Post("/:leadId/resolve", h.ResolvePause)

	router.Get("/batch-transfers", h.GetBatchTransfers)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.automationService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Leadflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Leadflow API is healthy"
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

func (h *APIHandlers) GetActionTypes(c fiber.Ctx) error {
	return c.JSON(h.registry.Descriptors())
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	automations, err := h.automationService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	columnID := c.Query("column_id")
	if columnID == "" {
		return c.JSON(automations)
	}

	filtered := make([]*models.Automation, 0, len(automations))

	for _, automation := range automations {
		if automation.ColumnID == columnID {
			filtered = append(filtered, automation)
		}
	}

	return c.JSON(filtered)
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	automation, err := h.automationService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	var automation models.Automation
	if err := c.Bind().JSON(&automation); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	saved, err := h.automationService.Save(c.Context(), "", &automation)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *APIHandlers) SaveAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	var automation models.Automation
	if err := c.Bind().JSON(&automation); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	saved, err := h.automationService.Save(c.Context(), id, &automation)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	err := h.automationService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnterColumn(c fiber.Ctx) error {
	leadID := c.Params("id")

	var req EnterRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	// The lead id comes from the path, so the embedded lead is not validated.
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	lead := req.Lead
	if lead == nil {
		lead = &models.Lead{}
	}

	if lead.ID != "" && lead.ID != leadID {
		return badRequest(c, "Lead ID does not match the path")
	}

	lead.ID = leadID
	if lead.Status == "" {
		lead.Status = req.SourceColumnID
	}

	err := h.leadService.Enter(c.Context(), services.EnterRequest{
		Lead:           lead,
		ColumnID:       req.ColumnID,
		SourceColumnID: req.SourceColumnID,
		StartActionID:  req.StartActionID,
		Variables:      req.Variables,
	})

	var choice *services.StartChoiceError
	if errors.As(err, &choice) {
		return c.Status(fiber.StatusConflict).JSON(TransformCandidates(choice.AutomationID, choice.Candidates))
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetCurrentAction(c fiber.Ctx) error {
	leadID := c.Params("id")

	actionID, err := h.leadService.CurrentAction(c.Context(), leadID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(CurrentActionResponse{LeadID: leadID, ActionID: actionID, Idle: actionID == ""})
}

func (h *APIHandlers) GetPauses(c fiber.Ctx) error {
	pauses, err := h.leadService.Pauses(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(pauses)
}

func (h *APIHandlers) ResolvePause(c fiber.Ctx) error {
	leadID := c.Params("leadId")

	var req ResolvePauseRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.leadService.ResolvePause(c.Context(), leadID, req.Decision, req.Resume)
	if err != nil {
		if persistence.IsPauseNotFound(err) {
			return notFound(c, "pause_not_found", "lead is not paused")
		}

		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetBatchTransfers(c fiber.Ctx) error {
	states, err := h.leadService.BatchTransfers(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(states)
}
