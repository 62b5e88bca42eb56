// Package simulate provides the what-if node. It projects values from a
// hypothetical variant of the execution context without touching the real one
// and without calling any external system.
package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

// SimulateNode evaluates projection templates against a cloned context with
// assumed variable overrides applied.
type SimulateNode struct {
	id         string
	projection map[string]any
	assume     map[string]any
}

func NewSimulateNode(id string, config map[string]any) (*SimulateNode, error) {
	projection, ok := config["projection"].(map[string]any)
	if !ok || len(projection) == 0 {
		return nil, errors.New("missing required field 'projection'")
	}

	assume, _ := config["assume"].(map[string]any)

	return &SimulateNode{id: id, projection: projection, assume: assume}, nil
}

func (n *SimulateNode) ID() string            { return n.id }
func (n *SimulateNode) Type() models.NodeType { return models.NodeTypeSimulate }

func (n *SimulateNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	projected := ectx.Clone()

	if len(n.assume) > 0 {
		assumed, err := template.RenderMap(n.assume, ectx)
		if err != nil {
			return protocol.Fail(fmt.Errorf("rendering assumptions: %w", err), false), nil
		}

		if projected.Variables == nil {
			projected.Variables = make(map[string]any, len(assumed))
		}
		for k, v := range assumed {
			projected.Variables[k] = v
		}
	}

	result, err := template.RenderMap(n.projection, projected)
	if err != nil {
		return protocol.Fail(fmt.Errorf("rendering projection: %w", err), false), nil
	}

	output := map[string]any{"simulated": true}
	for k, v := range result {
		output[k] = v
	}

	return protocol.Success(output, ""), nil
}
