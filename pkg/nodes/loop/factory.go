package loop

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// LoopNodeFactory creates LoopNode instances.
type LoopNodeFactory struct{}

func NewLoopNodeFactory() protocol.NodeFactory {
	return &LoopNodeFactory{}
}

func (f *LoopNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewLoopNode(id, config)
}

func (f *LoopNodeFactory) ID() models.NodeType {
	return models.NodeTypeLoop
}

func (f *LoopNodeFactory) Name() string {
	return "Loop"
}

func (f *LoopNodeFactory) Description() string {
	return "Renders a template once per item of a bounded list"
}

func (f *LoopNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"description": "List to iterate, or a template resolving to one",
			},
			"item_template": map[string]any{
				"type":        "object",
				"description": "Rendered once per item with .vars.item and .vars.item_index in scope",
			},
			"max_iterations": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"default": defaultMaxIterations,
			},
		},
		"required": []string{"items", "item_template"},
	}
}
