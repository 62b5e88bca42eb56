// Package compensation provides the undo node. Compensation nodes are never
// part of the forward schedule; the compensation coordinator invokes them in
// reverse completion order after a fatal failure.
package compensation

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

// Strategies for undoing a completed node's effects.
const (
	StrategyIgnore           = "ignore"
	StrategyMarkAndReprocess = "mark_and_reprocess"
	StrategySoftDelete       = "soft_delete"
)

// CompensationNode undoes the effects of a previously completed node.
type CompensationNode struct {
	id           string
	compensates  string
	strategy     string
	actionType   string
	actionParams map[string]any
	performer    protocol.ActionPerformer
}

func NewCompensationNode(id string, config map[string]any, performer protocol.ActionPerformer) (*CompensationNode, error) {
	compensates, ok := config["compensates"].(string)
	if !ok || compensates == "" {
		return nil, errors.New("missing required field 'compensates'")
	}

	strategy, _ := config["strategy"].(string)
	if strategy == "" {
		strategy = StrategyIgnore
	}

	switch strategy {
	case StrategyIgnore, StrategyMarkAndReprocess, StrategySoftDelete:
	default:
		return nil, fmt.Errorf("unknown compensation strategy '%s'", strategy)
	}

	actionType, _ := config["action_type"].(string)
	if strategy != StrategyIgnore && actionType == "" {
		return nil, fmt.Errorf("strategy '%s' requires 'action_type'", strategy)
	}

	actionParams, _ := config["action_params"].(map[string]any)

	return &CompensationNode{
		id:           id,
		compensates:  compensates,
		strategy:     strategy,
		actionType:   actionType,
		actionParams: actionParams,
		performer:    performer,
	}, nil
}

func (n *CompensationNode) ID() string            { return n.id }
func (n *CompensationNode) Type() models.NodeType { return models.NodeTypeCompensation }

// Compensates returns the id of the forward node this node undoes.
func (n *CompensationNode) Compensates() string { return n.compensates }

// Execute is not part of the forward schedule. Reaching it means the
// definition wired a compensation node into the regular flow.
func (n *CompensationNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	return protocol.Fail(fmt.Errorf("compensation node '%s' cannot run in the forward flow", n.id), false), nil
}

// Compensate undoes the compensated node's effects using the configured
// strategy. The forward node's recorded output is passed in so templates can
// reference what was produced.
func (n *CompensationNode) Compensate(ctx context.Context, ectx *models.ExecutionContext, forwardOutput map[string]any) (*protocol.NodeOutcome, error) {
	if n.strategy == StrategyIgnore {
		return protocol.Success(map[string]any{
			"compensates": n.compensates,
			"strategy":    n.strategy,
			"skipped":     true,
		}, ""), nil
	}

	params, err := template.RenderMap(n.actionParams, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("rendering compensation params: %w", err), false), nil
	}
	if params == nil {
		params = map[string]any{}
	}

	params["compensates"] = n.compensates
	params["strategy"] = n.strategy
	if forwardOutput != nil {
		params["forward_output"] = forwardOutput
	}

	result, err := n.performer.Perform(ctx, n.actionType, params)
	if err != nil {
		return protocol.Fail(fmt.Errorf("compensation action '%s': %w", n.actionType, err), true), nil
	}

	output := map[string]any{
		"compensates": n.compensates,
		"strategy":    n.strategy,
		"action_type": n.actionType,
		"status":      result.Status,
	}
	for k, v := range result.Result {
		output[k] = v
	}

	return protocol.Success(output, ""), nil
}
