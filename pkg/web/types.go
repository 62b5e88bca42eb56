// Package web provides HTTP request and response types for the control API.
package web

import "github.com/stratumflow/stratum/pkg/models"

// CreateDefinitionRequest represents the request body for creating a new
// workflow definition. Nodes and edges are submitted together; the graph is
// validated when an instance starts.
type CreateDefinitionRequest struct {
	ID          string                   `json:"id"          validate:"required,min=3"`
	Name        string                   `json:"name"        validate:"required,min=3"`
	Description string                   `json:"description"`
	Version     int                      `json:"version"     validate:"min=0"`
	Variables   map[string]any           `json:"variables"`
	Owner       string                   `json:"owner"`
	TriggerConf map[string]any           `json:"trigger_conf"`
	Nodes       []*models.DefinitionNode `json:"nodes"       validate:"required,min=1"`
	Edges       []*models.Edge           `json:"edges"`
}

// StartInstanceRequest represents the request body for starting a workflow
// instance from a published definition.
type StartInstanceRequest struct {
	TriggerData map[string]any `json:"trigger_data"`
	Variables   map[string]any `json:"variables"`
	SessionID   string         `json:"session_id"`
	UserID      string         `json:"user_id"`
}

// SignalRequest carries the external payload that wakes a suspended wait
// node.
type SignalRequest struct {
	NodeID  string         `json:"node_id" validate:"required"`
	Payload map[string]any `json:"payload"`
}

// CancelRequest represents the request body for cancelling an instance.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// DecideRequest records a human verdict on a pending approval.
type DecideRequest struct {
	Approved  *bool  `json:"approved"   validate:"required"`
	DecidedBy string `json:"decided_by" validate:"required"`
	Note      string `json:"note"`
}

// CreateDeploymentRequest represents the request body for creating a canary
// deployment in draft state.
type CreateDeploymentRequest struct {
	TargetType           string   `json:"target_type"      validate:"required"`
	TargetID             string   `json:"target_id"        validate:"required"`
	OldVersion           string   `json:"old_version"      validate:"required"`
	NewVersion           string   `json:"new_version"      validate:"required"`
	TrafficFraction      float64  `json:"traffic_fraction" validate:"min=0,max=1"`
	Strategy             string   `json:"strategy"`
	CompensationStrategy string   `json:"compensation_strategy"`
	AutoRollback         *bool    `json:"auto_rollback"`
}

// SetTrafficRequest adjusts the canary traffic fraction.
type SetTrafficRequest struct {
	Fraction *float64 `json:"fraction" validate:"required,min=0,max=1"`
}

// RollbackDeploymentRequest represents the request body for a manual
// rollback.
type RollbackDeploymentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RecordSampleRequest appends one windowed metrics sample for a deployment
// version.
type RecordSampleRequest struct {
	Version     string  `json:"version"        validate:"required"`
	ErrorRate   float64 `json:"error_rate"     validate:"min=0,max=1"`
	LatencyP95  float64 `json:"latency_p95_ms" validate:"min=0"`
	SampleCount int     `json:"sample_count"   validate:"required,min=1"`
}

// UpsertMatrixEntryRequest overrides one (trust level, risk level) cell of
// the decision matrix.
type UpsertMatrixEntryRequest struct {
	TrustLevel  *int   `json:"trust_level" validate:"required,min=0,max=3"`
	RiskLevel   string `json:"risk_level"  validate:"required,oneof=low medium high critical"`
	Decision    string `json:"decision"    validate:"required,oneof=auto approval reject"`
	Description string `json:"description"`
}

// UpsertRiskRequest registers or updates a risk classification for an action
// type or glob pattern.
type UpsertRiskRequest struct {
	ActionType  string `json:"action_type" validate:"required"`
	Pattern     bool   `json:"pattern"`
	Level       string `json:"level"       validate:"required,oneof=low medium high critical"`
	Category    string `json:"category"`
	Reversible  bool   `json:"reversible"`
	Description string `json:"description"`
}

// EvaluateTrustRequest submits an observation window for trust re-scoring.
type EvaluateTrustRequest struct {
	SuccessRate            float64 `json:"success_rate"             validate:"min=0,max=1"`
	Feedback               float64 `json:"feedback"                 validate:"min=0,max=1"`
	AgeDays                float64 `json:"age_days"                 validate:"min=0"`
	ExecutionsPerDay       float64 `json:"executions_per_day"       validate:"min=0"`
	RecentCriticalFailures int     `json:"recent_critical_failures" validate:"min=0"`
}
