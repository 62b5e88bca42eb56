// Package events defines the notification events emitted by the
// orchestration core: instance lifecycle, approvals, canary rollbacks and
// trust level changes.
package events

import (
	"time"

	"github.com/stratumflow/stratum/pkg/models"
)

type EventType string

// Topic is the bus topic all core events are published to.
const Topic = "stratum.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceFailedEvent    EventType = "instance.failed"
	InstanceSuspendedEvent EventType = "instance.suspended"
	InstanceResumedEvent   EventType = "instance.resumed"
	InstanceCancelledEvent EventType = "instance.cancelled"

	// Node execution.
	NodeFinishedEvent EventType = "node.finished"
	NodeFailedEvent   EventType = "node.failed"

	// Governance.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalResolvedEvent  EventType = "approval.resolved"
	TrustLevelChangedEvent EventType = "trust.level.changed"

	// Canary.
	DeploymentPromotedEvent   EventType = "deployment.promoted"
	DeploymentRolledBackEvent EventType = "deployment.rolled_back"

	// Compensation.
	CompensationFinishedEvent EventType = "compensation.finished"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	DefinitionID string         `json:"definition_id,omitempty"`
	InstanceID   string         `json:"instance_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type InstanceStarted struct {
	BaseEvent

	DefinitionVersion int            `json:"definition_version"`
	TriggerData       map[string]any `json:"trigger_data,omitempty"`
}

func (e InstanceStarted) GetType() EventType { return InstanceStartedEvent }

type InstanceCompleted struct {
	BaseEvent

	CompletedNodes []string      `json:"completed_nodes"`
	Duration       time.Duration `json:"duration"`
}

func (e InstanceCompleted) GetType() EventType { return InstanceCompletedEvent }

type InstanceFailed struct {
	BaseEvent

	FailedNodeID string `json:"failed_node_id"`
	Error        string `json:"error"`
	Compensated  bool   `json:"compensated"`
}

func (e InstanceFailed) GetType() EventType { return InstanceFailedEvent }

type InstanceSuspended struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Reason string `json:"reason"`
}

func (e InstanceSuspended) GetType() EventType { return InstanceSuspendedEvent }

type InstanceResumed struct {
	BaseEvent

	NodeID             string `json:"node_id"`
	CheckpointSequence uint64 `json:"checkpoint_sequence,omitempty"`
}

func (e InstanceResumed) GetType() EventType { return InstanceResumedEvent }

type InstanceCancelled struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e InstanceCancelled) GetType() EventType { return InstanceCancelledEvent }

type NodeFinished struct {
	BaseEvent

	NodeID     string         `json:"node_id"`
	Port       string         `json:"port,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func (e NodeFinished) GetType() EventType { return NodeFinishedEvent }

type NodeFailed struct {
	BaseEvent

	NodeID    string `json:"node_id"`
	Error     string `json:"error"`
	Attempts  int    `json:"attempts"`
	Retryable bool   `json:"retryable"`
}

func (e NodeFailed) GetType() EventType { return NodeFailedEvent }

type ApprovalRequested struct {
	BaseEvent

	ApprovalID string           `json:"approval_id"`
	ActionType string           `json:"action_type"`
	EntityID   string           `json:"entity_id"`
	RiskLevel  models.RiskLevel `json:"risk_level"`
	Reason     string           `json:"reason"`
}

func (e ApprovalRequested) GetType() EventType { return ApprovalRequestedEvent }

type ApprovalResolved struct {
	BaseEvent

	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
	DecidedBy  string `json:"decided_by"`
}

func (e ApprovalResolved) GetType() EventType { return ApprovalResolvedEvent }

type TrustLevelChanged struct {
	BaseEvent

	EntityID      string            `json:"entity_id"`
	PreviousLevel models.TrustLevel `json:"previous_level"`
	NewLevel      models.TrustLevel `json:"new_level"`
	Reason        string            `json:"reason"`
}

func (e TrustLevelChanged) GetType() EventType { return TrustLevelChangedEvent }

type DeploymentPromoted struct {
	BaseEvent

	DeploymentID string `json:"deployment_id"`
	NewVersion   string `json:"new_version"`
}

func (e DeploymentPromoted) GetType() EventType { return DeploymentPromotedEvent }

// DeploymentRolledBack carries the trigger so subscribers can show the
// metric values on both sides of the comparison that fired.
type DeploymentRolledBack struct {
	BaseEvent

	DeploymentID string                  `json:"deployment_id"`
	OldVersion   string                  `json:"old_version"`
	NewVersion   string                  `json:"new_version"`
	Automatic    bool                    `json:"automatic"`
	Trigger      *models.RollbackTrigger `json:"trigger,omitempty"`
}

func (e DeploymentRolledBack) GetType() EventType { return DeploymentRolledBackEvent }

type CompensationFinished struct {
	BaseEvent

	Strategy models.CompensationStrategy `json:"strategy"`
	Steps    int                         `json:"steps"`
	Failures int                         `json:"failures"`
}

func (e CompensationFinished) GetType() EventType { return CompensationFinishedEvent }
