// Package protocol defines the contracts between the orchestrator, node
// executors, and external collaborators.
package protocol

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
)

// OutcomeStatus is the tri-state result every node execution resolves to.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeSuspended OutcomeStatus = "suspended"
	OutcomeFailed    OutcomeStatus = "failed"
)

// NodeOutcome is what a node returns to the orchestrator. Exactly one of the
// three shapes applies:
//   - success: Output is recorded, Port selects the outbound edges
//   - suspended: the instance parks until a signal or decision arrives
//   - failed: Err describes the failure, Retryable selects backoff vs fatal
type NodeOutcome struct {
	Status    OutcomeStatus
	Output    map[string]any
	Port      string
	Reason    string
	Err       error
	Retryable bool
}

// Success builds a success outcome routed through the given port.
func Success(output map[string]any, port string) *NodeOutcome {
	return &NodeOutcome{Status: OutcomeSuccess, Output: output, Port: port}
}

// Suspend builds a suspension outcome with a human-readable reason.
func Suspend(reason string) *NodeOutcome {
	return &NodeOutcome{Status: OutcomeSuspended, Reason: reason}
}

// Fail builds a failure outcome.
func Fail(err error, retryable bool) *NodeOutcome {
	return &NodeOutcome{Status: OutcomeFailed, Err: err, Retryable: retryable}
}

// Node is a configured executor for one definition node.
type Node interface {
	ID() string
	Type() models.NodeType
	Execute(ctx context.Context, ectx *models.ExecutionContext) (*NodeOutcome, error)
}

// NodeFactory creates node instances and describes the node type.
type NodeFactory interface {
	// Create builds a node instance for the given definition node id and config.
	Create(ctx context.Context, id string, config map[string]any) (Node, error)

	// ID returns the node type tag this factory serves.
	ID() models.NodeType

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node does.
	Description() string

	// Schema returns the JSON schema for configuring this node type.
	Schema() map[string]any
}
