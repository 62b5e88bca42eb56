package web

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/trust"
)

func (h *APIHandlers) ListPendingApprovals(c fiber.Ctx) error {
	pending, err := h.persistence.Decisions().ListPendingApprovals(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"approvals": pending, "count": len(pending)})
}

func (h *APIHandlers) GetApproval(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval ID is required")
	}

	approval, err := h.persistence.Decisions().GetApproval(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(approval)
}

// DecideApproval records the human verdict and, when the approval belongs to
// a suspended instance, wakes that instance so the approval node can emit
// its approved or rejected port.
func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval ID is required")
	}

	var req DecideRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	approval, err := h.router.Resolve(c.Context(), id, *req.Approved, req.DecidedBy, req.Note)
	if err != nil {
		return handleServiceError(c, err)
	}

	if approval.InstanceID != "" && approval.NodeID != "" {
		instance, err := h.engine.Decide(
			c.Context(), approval.InstanceID, approval.NodeID, *req.Approved, req.DecidedBy, req.Note)
		if err != nil && instance == nil {
			return handleServiceError(c, err)
		}

		return c.JSON(fiber.Map{"approval": approval, "instance": instance})
	}

	return c.JSON(fiber.Map{"approval": approval})
}

func (h *APIHandlers) GetDecisionMatrix(c fiber.Ctx) error {
	entries, err := h.persistence.Decisions().ListMatrix(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}

func (h *APIHandlers) UpsertMatrixEntry(c fiber.Ctx) error {
	var req UpsertMatrixEntryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	entry := &models.DecisionMatrixEntry{
		TrustLevel:  models.TrustLevel(*req.TrustLevel),
		RiskLevel:   models.RiskLevel(req.RiskLevel),
		Decision:    models.Decision(req.Decision),
		Description: req.Description,
	}

	if err := h.persistence.Decisions().UpsertMatrixEntry(c.Context(), entry); err != nil {
		return internalError(c, err)
	}

	return c.JSON(entry)
}

func (h *APIHandlers) ListRiskDefinitions(c fiber.Ctx) error {
	defs, err := h.persistence.Decisions().ListRiskDefinitions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"risks": defs, "count": len(defs)})
}

func (h *APIHandlers) UpsertRiskDefinition(c fiber.Ctx) error {
	var req UpsertRiskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	def := &models.RiskDefinition{
		ActionType:  req.ActionType,
		Pattern:     req.Pattern,
		Level:       models.RiskLevel(req.Level),
		Category:    req.Category,
		Reversible:  req.Reversible,
		Description: req.Description,
	}

	if err := h.persistence.Decisions().UpsertRiskDefinition(c.Context(), def); err != nil {
		return internalError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) ListAuditEntries(c fiber.Ctx) error {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	entries, err := h.persistence.Decisions().ListAuditEntries(c.Context(), c.Query("action_type"), limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}

func (h *APIHandlers) GetTrustScore(c fiber.Ctx) error {
	entityID := c.Params("entityId")
	if entityID == "" {
		return badRequest(c, "Entity ID is required")
	}

	score, err := h.persistence.Trust().GetScore(c.Context(), entityID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(score)
}

func (h *APIHandlers) EvaluateTrust(c fiber.Ctx) error {
	entityID := c.Params("entityId")
	if entityID == "" {
		return badRequest(c, "Entity ID is required")
	}

	var req EvaluateTrustRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	score, err := h.trust.Evaluate(c.Context(), entityID, trust.Observation{
		SuccessRate:            req.SuccessRate,
		Feedback:               req.Feedback,
		AgeDays:                req.AgeDays,
		ExecutionsPerDay:       req.ExecutionsPerDay,
		RecentCriticalFailures: req.RecentCriticalFailures,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(score)
}

func (h *APIHandlers) GetTrustHistory(c fiber.Ctx) error {
	entityID := c.Params("entityId")
	if entityID == "" {
		return badRequest(c, "Entity ID is required")
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	changes, err := h.trust.History(c.Context(), entityID, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"changes": changes, "count": len(changes)})
}
