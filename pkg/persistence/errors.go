// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrDefinitionImmutable indicates an attempt to modify a published definition.
	ErrDefinitionImmutable = errors.New("published definition is immutable")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrCheckpointNotFound indicates no checkpoint exists for the instance.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrDeploymentNotFound indicates a canary deployment was not found.
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrAssignmentNotFound indicates no sticky assignment exists for the unit.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrApprovalNotFound indicates a pending approval was not found.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrMatrixEntryNotFound indicates the decision matrix has no entry for
	// a (trust, risk) pair. Callers treat the gap as approval-required.
	ErrMatrixEntryNotFound = errors.New("decision matrix entry not found")

	// ErrTrustScoreNotFound indicates no trust score exists for the entity.
	ErrTrustScoreNotFound = errors.New("trust score not found")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g. "Save", "GetByID")
	Entity string // Entity kind ("instance", "checkpoint", ...)
	ID     string // Entity id if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound reports whether the error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrCheckpointNotFound) ||
		errors.Is(err, ErrDeploymentNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrApprovalNotFound) ||
		errors.Is(err, ErrMatrixEntryNotFound) ||
		errors.Is(err, ErrTrustScoreNotFound)
}
