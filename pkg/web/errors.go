package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/stratumflow/stratum/pkg/canary"
	"github.com/stratumflow/stratum/pkg/orchestrator"
	"github.com/stratumflow/stratum/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusConflict).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func unprocessable(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusUnprocessableEntity).
		WithInstance(c.Path()).
		WithType("invalid_definition").
		WithDetail(detail)

	return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps orchestration and persistence errors onto RFC 7807
// responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var validationErr *orchestrator.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return unprocessable(c, err.Error())

	case errors.Is(err, orchestrator.ErrCheckpointRestoreMiss):
		return notFound(c, err.Error())

	case errors.Is(err, orchestrator.ErrInstanceNotSuspended),
		errors.Is(err, canary.ErrInvalidTransition),
		errors.Is(err, persistence.ErrDefinitionImmutable):
		return conflict(c, err.Error())

	case persistence.IsNotFound(err):
		return notFound(c, err.Error())

	default:
		return internalError(c, err)
	}
}
