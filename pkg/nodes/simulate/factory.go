package simulate

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// SimulateNodeFactory creates SimulateNode instances.
type SimulateNodeFactory struct{}

func NewSimulateNodeFactory() protocol.NodeFactory {
	return &SimulateNodeFactory{}
}

func (f *SimulateNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewSimulateNode(id, config)
}

func (f *SimulateNodeFactory) ID() models.NodeType {
	return models.NodeTypeSimulate
}

func (f *SimulateNodeFactory) Name() string {
	return "Simulate"
}

func (f *SimulateNodeFactory) Description() string {
	return "Projects hypothetical values without side effects"
}

func (f *SimulateNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"projection": map[string]any{
				"type":        "object",
				"description": "Templates evaluated against the hypothetical context; keys become output fields",
			},
			"assume": map[string]any{
				"type":        "object",
				"description": "Variable overrides applied to the cloned context before projecting",
			},
		},
		"required": []string{"projection"},
	}
}
