package protocol

import (
	"context"
	"time"
)

// Verdict is the structured result of a judgment call. The core treats the
// policy as opaque: it retries only on transport failure, never on semantic
// disagreement.
type Verdict struct {
	Verdict      string         `json:"verdict"`
	Confidence   float64        `json:"confidence"`
	EvidenceRefs []string       `json:"evidence_refs,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// JudgmentPolicy is the external judgment collaborator consumed by JUDGMENT
// nodes.
type JudgmentPolicy interface {
	Judge(ctx context.Context, workflowContext map[string]any, policyMode string) (*Verdict, error)
}

// ActionResult is the collaborator's response to a performed side effect.
// The collaborator classifies its own failures as retryable or fatal.
type ActionResult struct {
	Status    string         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Retryable bool           `json:"retryable"`
}

// ActionPerformer is the external action/notification collaborator consumed
// by ACTION nodes.
type ActionPerformer interface {
	Perform(ctx context.Context, actionType string, params map[string]any) (*ActionResult, error)
}

// DataSource answers read-only queries for DATA nodes.
type DataSource interface {
	Query(ctx context.Context, source string, query map[string]any) (map[string]any, error)
}

// Analytics is the external analytics collaborator consumed by BI nodes.
type Analytics interface {
	Analyze(ctx context.Context, analysis string, params map[string]any) (map[string]any, error)
}

// ToolCaller invokes an external tool with a declared deadline, consumed by
// MCP nodes.
type ToolCaller interface {
	Call(ctx context.Context, tool string, args map[string]any, timeout time.Duration) (map[string]any, error)
}

// ScriptRunner executes a sandboxed expression against context data,
// consumed by CODE nodes. Script errors are fatal to the instance.
type ScriptRunner interface {
	Run(ctx context.Context, script string, input map[string]any) (map[string]any, error)
}

// ScheduleRegistrar registers or updates schedules and event subscriptions
// on behalf of TRIGGER nodes.
type ScheduleRegistrar interface {
	RegisterSchedule(ctx context.Context, id, cronExpr string, payload map[string]any) error
	RegisterSubscription(ctx context.Context, id, eventType string, payload map[string]any) error
	Unregister(ctx context.Context, id string) error
}
