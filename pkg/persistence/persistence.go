// Package persistence provides the data storage abstraction for definitions,
// instances, checkpoints, canary deployments, trust and decision data.
package persistence

import (
	"context"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
)

// Persistence aggregates the repositories backing the orchestration core.
// Implementations exist for the file system and PostgreSQL; the checkpoint
// store additionally layers Redis and in-process tiers on top of the durable
// checkpoint repository.
type Persistence interface {
	Definitions() DefinitionRepository
	Instances() InstanceRepository
	Checkpoints() CheckpointRepository
	Deployments() DeploymentRepository
	Assignments() AssignmentRepository
	Metrics() MetricsRepository
	Trust() TrustRepository
	Decisions() DecisionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores workflow definitions. Published definitions are
// immutable; Save rejects updates to a published version.
type DefinitionRepository interface {
	Save(ctx context.Context, def *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
}

// InstanceRepository stores workflow instances.
type InstanceRepository interface {
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error)
}

// CheckpointRepository is the durable checkpoint tier.
type CheckpointRepository interface {
	Save(ctx context.Context, cp *models.Checkpoint) error
	Latest(ctx context.Context, instanceID string) (*models.Checkpoint, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	DeleteForInstance(ctx context.Context, instanceID string) error
}

// DeploymentRepository stores canary deployments.
type DeploymentRepository interface {
	Save(ctx context.Context, d *models.CanaryDeployment) error
	GetByID(ctx context.Context, id string) (*models.CanaryDeployment, error)
	ListByStatus(ctx context.Context, status models.DeploymentStatus) ([]*models.CanaryDeployment, error)
}

// AssignmentRepository stores sticky canary assignments. Upsert must be
// atomic: under concurrent first requests for the same unit exactly one
// version wins, and Upsert returns the winning assignment.
type AssignmentRepository interface {
	Upsert(ctx context.Context, a *models.CanaryAssignment) (*models.CanaryAssignment, error)
	Get(ctx context.Context, deploymentID string, kind models.AssignmentUnit, key string) (*models.CanaryAssignment, error)
	ListByVersion(ctx context.Context, deploymentID, version string) ([]*models.CanaryAssignment, error)
	DeleteForDeployment(ctx context.Context, deploymentID string) (int, error)
}

// MetricsRepository stores deployment metric samples. Appends are append-only
// and never mutated.
type MetricsRepository interface {
	Append(ctx context.Context, s *models.DeploymentMetricsSample) error
	QueryWindow(ctx context.Context, deploymentID, version string, since time.Time) ([]*models.DeploymentMetricsSample, error)
}

// TrustRepository stores trust scores and their change history.
type TrustRepository interface {
	SaveScore(ctx context.Context, score *models.TrustScore) error
	GetScore(ctx context.Context, entityID string) (*models.TrustScore, error)
	AppendChange(ctx context.Context, change *models.TrustLevelChange) error
	ListChanges(ctx context.Context, entityID string, limit int) ([]*models.TrustLevelChange, error)
}

// DecisionRepository stores the decision matrix, risk catalog, pending
// approvals, and the append-only execution audit log.
type DecisionRepository interface {
	UpsertMatrixEntry(ctx context.Context, entry *models.DecisionMatrixEntry) error
	GetMatrixEntry(ctx context.Context, trust models.TrustLevel, risk models.RiskLevel) (*models.DecisionMatrixEntry, error)
	ListMatrix(ctx context.Context) ([]*models.DecisionMatrixEntry, error)

	UpsertRiskDefinition(ctx context.Context, def *models.RiskDefinition) error
	ListRiskDefinitions(ctx context.Context) ([]*models.RiskDefinition, error)

	SaveApproval(ctx context.Context, approval *models.PendingApproval) error
	GetApproval(ctx context.Context, id string) (*models.PendingApproval, error)
	ListPendingApprovals(ctx context.Context) ([]*models.PendingApproval, error)

	AppendAuditEntry(ctx context.Context, entry *models.AutoExecutionLogEntry) error
	ListAuditEntries(ctx context.Context, actionType string, limit int) ([]*models.AutoExecutionLogEntry, error)
}
