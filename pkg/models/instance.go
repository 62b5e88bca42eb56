package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
// Suspended is the persisted face of a parked WAIT or APPROVAL node; the
// instance is still logically in flight.
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusSuspended InstanceStatus = "suspended"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed || s == InstanceStatusCancelled
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSuccess   NodeStatus = "success"
	NodeStatusSuspended NodeStatus = "suspended"
	NodeStatusError     NodeStatus = "error"
)

// NodeOutput is the recorded result of one node execution. Outputs are
// append-only per node id; corrections happen only through compensation
// entries, never by overwriting.
type NodeOutput struct {
	NodeID      string         `json:"node_id"`
	Data        map[string]any `json:"data"`
	Port        string         `json:"port,omitempty"`
	Status      NodeStatus     `json:"status"`
	Error       string         `json:"error,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// WorkflowInstance is one execution run of a definition.
type WorkflowInstance struct {
	ID                string                 `json:"id"            validate:"required"`
	DefinitionID      string                 `json:"definition_id" validate:"required"`
	DefinitionVersion int                    `json:"definition_version"`
	Status            InstanceStatus         `json:"status"`
	TriggerData       map[string]any         `json:"trigger_data,omitempty"`
	Variables         map[string]any         `json:"variables,omitempty"`
	Context           map[string]*NodeOutput `json:"context"`
	CompletedNodes    []string               `json:"completed_nodes"`
	SuspendedNodeID   string                 `json:"suspended_node_id,omitempty"`
	SuspendReason     string                 `json:"suspend_reason,omitempty"`
	FailedNodeID      string                 `json:"failed_node_id,omitempty"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	Compensation      *CompensationSummary   `json:"compensation,omitempty"`
	CancelRequested   bool                   `json:"cancel_requested"`
	SessionID         string                 `json:"session_id,omitempty"`
	UserID            string                 `json:"user_id,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
}

// AppendOutput records a node output and, on success, appends the node to the
// completion order. Existing outputs are never overwritten.
func (i *WorkflowInstance) AppendOutput(out *NodeOutput) bool {
	if _, exists := i.Context[out.NodeID]; exists {
		return false
	}

	if i.Context == nil {
		i.Context = make(map[string]*NodeOutput)
	}

	i.Context[out.NodeID] = out

	if out.Status == NodeStatusSuccess {
		i.CompletedNodes = append(i.CompletedNodes, out.NodeID)
	}

	return true
}

// ExecutionContext is the view of an instance handed to node executors.
type ExecutionContext struct {
	InstanceID   string                 `json:"instance_id"`
	DefinitionID string                 `json:"definition_id"`
	TriggerData  map[string]any         `json:"trigger_data,omitempty"`
	Variables    map[string]any         `json:"variables,omitempty"`
	NodeOutputs  map[string]*NodeOutput `json:"node_outputs,omitempty"`
	Metadata     map[string]any         `json:"metadata,omitempty"`
}

// OutputData returns the recorded data of a completed node, or nil.
func (c *ExecutionContext) OutputData(nodeID string) map[string]any {
	if out, ok := c.NodeOutputs[nodeID]; ok {
		return out.Data
	}

	return nil
}

// Clone returns a deep-enough copy for what-if projections: node outputs are
// shared (they are never mutated), the maps holding them are not.
func (c *ExecutionContext) Clone() *ExecutionContext {
	clone := &ExecutionContext{
		InstanceID:   c.InstanceID,
		DefinitionID: c.DefinitionID,
		TriggerData:  c.TriggerData,
		Variables:    make(map[string]any, len(c.Variables)),
		NodeOutputs:  make(map[string]*NodeOutput, len(c.NodeOutputs)),
		Metadata:     make(map[string]any, len(c.Metadata)),
	}

	for k, v := range c.Variables {
		clone.Variables[k] = v
	}

	for k, v := range c.NodeOutputs {
		clone.NodeOutputs[k] = v
	}

	for k, v := range c.Metadata {
		clone.Metadata[k] = v
	}

	return clone
}
