// Package action provides the side-effecting external action node.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

// ActionNode performs an external side effect through the action performer
// collaborator. The collaborator classifies its own failures as retryable
// or fatal. Completed actions are eligible for compensation.
type ActionNode struct {
	id         string
	actionType string
	params     map[string]any
	performer  protocol.ActionPerformer
}

func NewActionNode(id string, config map[string]any, performer protocol.ActionPerformer) (*ActionNode, error) {
	actionType, ok := config["action_type"].(string)
	if !ok || actionType == "" {
		return nil, errors.New("missing required field 'action_type'")
	}

	params, _ := config["params"].(map[string]any)

	return &ActionNode{
		id:         id,
		actionType: actionType,
		params:     params,
		performer:  performer,
	}, nil
}

func (n *ActionNode) ID() string            { return n.id }
func (n *ActionNode) Type() models.NodeType { return models.NodeTypeAction }

// ActionType exposes the configured action type for risk evaluation.
func (n *ActionNode) ActionType() string { return n.actionType }

func (n *ActionNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	params, err := template.RenderMap(n.params, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("params rendering failed: %w", err), false), nil
	}

	result, err := n.performer.Perform(ctx, n.actionType, params)
	if err != nil {
		return protocol.Fail(fmt.Errorf("action '%s' failed: %w", n.actionType, err), true), nil
	}

	if result.Status != "ok" && result.Status != "success" {
		return protocol.Fail(
			fmt.Errorf("action '%s' returned status '%s'", n.actionType, result.Status),
			result.Retryable,
		), nil
	}

	output := map[string]any{
		"action_type": n.actionType,
		"status":      result.Status,
	}
	for k, v := range result.Result {
		output[k] = v
	}

	return protocol.Success(output, ""), nil
}
