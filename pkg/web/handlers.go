// Package web provides the HTTP handlers for the orchestration control API.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/stratumflow/stratum/pkg/canary"
	"github.com/stratumflow/stratum/pkg/decision"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/orchestrator"
	"github.com/stratumflow/stratum/pkg/persistence"
	"github.com/stratumflow/stratum/pkg/registry"
	"github.com/stratumflow/stratum/pkg/trust"
)

type APIHandlers struct {
	engine      *orchestrator.Engine
	persistence persistence.Persistence
	registry    *registry.Registry
	router      *decision.Router
	trust       *trust.Manager
	canary      *canary.Manager
	resolver    *canary.Resolver
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	engine *orchestrator.Engine,
	p persistence.Persistence,
	reg *registry.Registry,
	router *decision.Router,
	trustManager *trust.Manager,
	canaryManager *canary.Manager,
	resolver *canary.Resolver,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		persistence: p,
		registry:    reg,
		router:      router,
		trust:       trustManager,
		canary:      canaryManager,
		resolver:    resolver,
		validator:   validate,
		logger:      logger,
	}
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	defs, err := h.persistence.Definitions().List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"definitions": defs, "count": len(defs)})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	def, err := h.persistence.Definitions().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req CreateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version := req.Version
	if version == 0 {
		version = 1
	}

	def := &models.WorkflowDefinition{
		ID:          req.ID,
		Version:     version,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.DefinitionStatusDraft,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		TriggerConf: req.TriggerConf,
		Variables:   req.Variables,
		Owner:       req.Owner,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.persistence.Definitions().Save(c.Context(), def); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) PublishDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	def, err := h.persistence.Definitions().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if def.Status == models.DefinitionStatusPublished {
		return conflict(c, "definition is already published")
	}

	if err := h.registry.ValidateDefinition(def); err != nil {
		return unprocessable(c, err.Error())
	}

	now := time.Now().UTC()
	def.Status = models.DefinitionStatusPublished
	def.PublishedAt = &now

	if err := h.persistence.Definitions().Save(c.Context(), def); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	if err := h.persistence.Definitions().Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	definitionID := c.Params("id")
	if definitionID == "" {
		return badRequest(c, "Definition ID is required")
	}

	var req StartInstanceRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	instance, err := h.engine.Start(c.Context(), definitionID, orchestrator.StartOptions{
		TriggerData: req.TriggerData,
		Variables:   req.Variables,
		SessionID:   req.SessionID,
		UserID:      req.UserID,
	})
	if err != nil && instance == nil {
		return handleServiceError(c, err)
	}

	// A started instance that failed downstream is still a created resource;
	// the terminal state and error are part of the body.
	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.engine.GetInstance(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) ListInstances(c fiber.Ctx) error {
	status := models.InstanceStatus(c.Query("status", string(models.InstanceStatusRunning)))

	instances, err := h.persistence.Instances().ListByStatus(c.Context(), status)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"instances": instances, "count": len(instances)})
}

func (h *APIHandlers) SignalInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req SignalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Signal(c.Context(), id, req.NodeID, req.Payload)
	if err != nil && instance == nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.engine.Resume(c.Context(), id)
	if err != nil && instance == nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req CancelRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	instance, err := h.engine.Cancel(c.Context(), id, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	message := "Stratum API is healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		message = "Stratum API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": err == nil,
			"node_types": len(h.registry.Available()),
		},
		"timestamp": time.Now().UTC(),
	})
}
