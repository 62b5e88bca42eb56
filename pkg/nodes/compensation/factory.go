package compensation

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// CompensationNodeFactory creates CompensationNode instances bound to the
// action collaborator.
type CompensationNodeFactory struct {
	performer protocol.ActionPerformer
}

func NewCompensationNodeFactory(performer protocol.ActionPerformer) protocol.NodeFactory {
	return &CompensationNodeFactory{performer: performer}
}

func (f *CompensationNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewCompensationNode(id, config, f.performer)
}

func (f *CompensationNodeFactory) ID() models.NodeType {
	return models.NodeTypeCompensation
}

func (f *CompensationNodeFactory) Name() string {
	return "Compensation"
}

func (f *CompensationNodeFactory) Description() string {
	return "Undoes the effects of a completed node during an unwind"
}

func (f *CompensationNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"compensates": map[string]any{
				"type":        "string",
				"description": "Id of the forward node whose effects this node undoes",
			},
			"strategy": map[string]any{
				"type":    "string",
				"enum":    []string{StrategyIgnore, StrategyMarkAndReprocess, StrategySoftDelete},
				"default": StrategyIgnore,
			},
			"action_type": map[string]any{
				"type":        "string",
				"description": "External action performed to undo the effect; required unless strategy is 'ignore'",
			},
			"action_params": map[string]any{
				"type": "object",
			},
		},
		"required": []string{"compensates"},
	}
}
