// Package code provides the sandboxed script execution node.
package code

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// CodeNode runs a sandboxed expression against the instance context. A
// script error is fatal to the instance: retrying the same script against
// the same input cannot succeed.
type CodeNode struct {
	id     string
	script string
	runner protocol.ScriptRunner
}

func NewCodeNode(id string, config map[string]any, runner protocol.ScriptRunner) (*CodeNode, error) {
	script, ok := config["script"].(string)
	if !ok || script == "" {
		return nil, errors.New("missing required field 'script'")
	}

	return &CodeNode{id: id, script: script, runner: runner}, nil
}

func (n *CodeNode) ID() string            { return n.id }
func (n *CodeNode) Type() models.NodeType { return models.NodeTypeCode }

func (n *CodeNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	input := map[string]any{
		"trigger_data": ectx.TriggerData,
		"variables":    ectx.Variables,
		"outputs":      make(map[string]any, len(ectx.NodeOutputs)),
	}

	outputs, _ := input["outputs"].(map[string]any)
	for nodeID, out := range ectx.NodeOutputs {
		outputs[nodeID] = out.Data
	}

	result, err := n.runner.Run(ctx, n.script, input)
	if err != nil {
		return protocol.Fail(fmt.Errorf("script execution failed: %w", err), false), nil
	}

	return protocol.Success(result, ""), nil
}
