package models

import "time"

// RiskLevel is a discrete severity classification of what an action could do
// if it runs incorrectly.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists all levels in ascending severity.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Decision is the routing verdict for an action about to execute.
type Decision string

const (
	DecisionAuto     Decision = "auto"
	DecisionApproval Decision = "approval"
	DecisionReject   Decision = "reject"
)

// DecisionMatrixEntry maps (trust level, risk level) to a decision. Pairs
// absent from the configured matrix default to approval, never to auto or
// reject.
type DecisionMatrixEntry struct {
	TrustLevel  TrustLevel `json:"trust_level" validate:"min=0,max=3"`
	RiskLevel   RiskLevel  `json:"risk_level"  validate:"required"`
	Decision    Decision   `json:"decision"    validate:"required"`
	Description string     `json:"description,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RiskDefinition classifies an action type, either exactly or by glob
// pattern ("notification_*").
type RiskDefinition struct {
	ActionType  string    `json:"action_type" validate:"required"`
	Pattern     bool      `json:"pattern"`
	Level       RiskLevel `json:"level"       validate:"required"`
	Category    string    `json:"category,omitempty"`
	Reversible  bool      `json:"reversible"`
	Description string    `json:"description,omitempty"`
}

// RoutingResult is the outcome of routing an action through the decision
// router: the effective decision plus the trust and risk values that
// produced it. ApprovalID is set when a pending approval was created.
type RoutingResult struct {
	Decision   Decision   `json:"decision"`
	Reason     string     `json:"reason"`
	TrustLevel TrustLevel `json:"trust_level"`
	RiskLevel  RiskLevel  `json:"risk_level"`
	ApprovalID string     `json:"approval_id,omitempty"`
}

// PendingApproval is a suspended action waiting for a human decision.
type PendingApproval struct {
	ID          string     `json:"id"`
	InstanceID  string     `json:"instance_id,omitempty"`
	NodeID      string     `json:"node_id,omitempty"`
	ActionType  string     `json:"action_type"`
	EntityID    string     `json:"entity_id"`
	TrustLevel  TrustLevel `json:"trust_level"`
	RiskLevel   RiskLevel  `json:"risk_level"`
	Reason      string     `json:"reason"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	Approved    *bool      `json:"approved,omitempty"`
	DecidedBy   string     `json:"decided_by,omitempty"`
	DecisionNote string    `json:"decision_note,omitempty"`
}

// Resolved reports whether a human decision has been recorded.
func (p *PendingApproval) Resolved() bool {
	return p.DecidedAt != nil
}

// AutoExecutionLogEntry is the append-only audit record of a routing
// decision. The core never deletes these.
type AutoExecutionLogEntry struct {
	ID         string     `json:"id"`
	ActionType string     `json:"action_type"`
	EntityID   string     `json:"entity_id"`
	TrustLevel TrustLevel `json:"trust_level"`
	RiskLevel  RiskLevel  `json:"risk_level"`
	Decision   Decision   `json:"decision"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
}
