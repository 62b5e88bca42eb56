package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/stratumflow/stratum/pkg/canary"
	"github.com/stratumflow/stratum/pkg/models"
)

func (h *APIHandlers) CreateDeployment(c fiber.Ctx) error {
	var req CreateDeploymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	autoRollback := true
	if req.AutoRollback != nil {
		autoRollback = *req.AutoRollback
	}

	deployment, err := h.canary.CreateDeployment(c.Context(), &models.CanaryDeployment{
		TargetType:           req.TargetType,
		TargetID:             req.TargetID,
		OldVersion:           req.OldVersion,
		NewVersion:           req.NewVersion,
		TrafficFraction:      req.TrafficFraction,
		Strategy:             req.Strategy,
		CompensationStrategy: models.CompensationStrategy(req.CompensationStrategy),
		AutoRollback:         autoRollback,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(deployment)
}

func (h *APIHandlers) GetDeployment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Deployment ID is required")
	}

	deployment, err := h.canary.GetDeployment(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deployment)
}

func (h *APIHandlers) ListDeployments(c fiber.Ctx) error {
	status := models.DeploymentStatus(c.Query("status", string(models.DeploymentStatusCanary)))

	deployments, err := h.canary.ListByStatus(c.Context(), status)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"deployments": deployments, "count": len(deployments)})
}

func (h *APIHandlers) StartCanary(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Deployment ID is required")
	}

	deployment, err := h.canary.StartCanary(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deployment)
}

func (h *APIHandlers) SetTraffic(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Deployment ID is required")
	}

	var req SetTrafficRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	deployment, err := h.canary.SetTraffic(c.Context(), id, *req.Fraction)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deployment)
}

func (h *APIHandlers) PromoteDeployment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Deployment ID is required")
	}

	deployment, err := h.canary.Promote(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deployment)
}

func (h *APIHandlers) RollbackDeployment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Deployment ID is required")
	}

	var req RollbackDeploymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	deployment, err := h.canary.Rollback(c.Context(), id, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deployment)
}

// ResolveVersion answers which version a traffic unit should execute. The
// assignment is sticky: the first resolution for a unit records it for the
// life of the deployment.
func (h *APIHandlers) ResolveVersion(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Deployment ID is required")
	}

	req := canary.ResolutionRequest{
		InstanceID: c.Query("instance_id"),
		SessionID:  c.Query("session_id"),
		UserID:     c.Query("user_id"),
	}

	deployment, err := h.canary.GetDeployment(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	assignment, err := h.resolver.Resolve(c.Context(), deployment, req)
	if err != nil {
		if errors.Is(err, canary.ErrNoAssignableUnit) {
			return badRequest(c, "at least one of instance_id, session_id or user_id is required")
		}

		return internalError(c, err)
	}

	return c.JSON(assignment)
}

func (h *APIHandlers) RecordSample(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Deployment ID is required")
	}

	var req RecordSampleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sample := &models.DeploymentMetricsSample{
		DeploymentID: id,
		Version:      req.Version,
		ErrorRate:    req.ErrorRate,
		LatencyP95:   req.LatencyP95,
		SampleCount:  req.SampleCount,
		WindowStart:  time.Now().UTC(),
	}

	if err := h.canary.RecordSample(c.Context(), sample); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(sample)
}
