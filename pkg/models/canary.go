package models

import "time"

// DeploymentStatus is the canary state machine:
// Draft -> Canary -> {Promoted, RolledBack}. Promoted and RolledBack are terminal.
type DeploymentStatus string

const (
	DeploymentStatusDraft      DeploymentStatus = "draft"
	DeploymentStatusCanary     DeploymentStatus = "canary"
	DeploymentStatusPromoted   DeploymentStatus = "promoted"
	DeploymentStatusRolledBack DeploymentStatus = "rolled_back"
)

// Terminal reports whether the deployment admits no further transitions.
func (s DeploymentStatus) Terminal() bool {
	return s == DeploymentStatusPromoted || s == DeploymentStatusRolledBack
}

// CanaryDeployment is a progressive rollout of NewVersion over OldVersion for
// one deployable target.
type CanaryDeployment struct {
	ID                   string               `json:"id"          validate:"required"`
	TargetType           string               `json:"target_type" validate:"required"`
	TargetID             string               `json:"target_id"   validate:"required"`
	OldVersion           string               `json:"old_version" validate:"required"`
	NewVersion           string               `json:"new_version" validate:"required"`
	TrafficFraction      float64              `json:"traffic_fraction" validate:"min=0,max=1"`
	Strategy             string               `json:"strategy,omitempty"`
	CompensationStrategy CompensationStrategy `json:"compensation_strategy,omitempty"`
	Status               DeploymentStatus     `json:"status"`
	AutoRollback         bool                 `json:"auto_rollback"`
	RollbackReason       string               `json:"rollback_reason,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
	PromotedAt           *time.Time           `json:"promoted_at,omitempty"`
	RolledBackAt         *time.Time           `json:"rolled_back_at,omitempty"`
}

// AssignmentUnit is the kind of traffic unit stickily bound to a version.
// Lookup priority is instance > session > user.
type AssignmentUnit string

const (
	UnitInstance AssignmentUnit = "instance"
	UnitSession  AssignmentUnit = "session"
	UnitUser     AssignmentUnit = "user"
)

// CanaryAssignment stickily binds one traffic unit to a version for the life
// of a deployment. Created once per unit by idempotent upsert; immutable.
type CanaryAssignment struct {
	DeploymentID    string         `json:"deployment_id" validate:"required"`
	UnitKind        AssignmentUnit `json:"unit_kind"     validate:"required"`
	UnitKey         string         `json:"unit_key"      validate:"required"`
	AssignedVersion string         `json:"assigned_version"`
	CreatedAt       time.Time      `json:"created_at"`
}

// DeploymentMetricsSample is a windowed comparative metric reported by
// completed executions. Samples are append-only.
type DeploymentMetricsSample struct {
	DeploymentID string    `json:"deployment_id"`
	Version      string    `json:"version"`
	ErrorRate    float64   `json:"error_rate"`
	LatencyP95   float64   `json:"latency_p95_ms"`
	SampleCount  int       `json:"sample_count"`
	WindowStart  time.Time `json:"window_start"`
}

// RollbackTrigger describes why an automatic rollback fired, with the metric
// values on both sides of the comparison.
type RollbackTrigger struct {
	DeploymentID     string    `json:"deployment_id"`
	Condition        string    `json:"condition"`
	Reason           string    `json:"reason"`
	NewErrorRate     float64   `json:"new_error_rate"`
	OldErrorRate     float64   `json:"old_error_rate"`
	ErrorRateRatio   float64   `json:"error_rate_ratio"`
	LatencyP95Ratio  float64   `json:"latency_p95_ratio"`
	ConsecutiveFails int       `json:"consecutive_failures"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}
