package action

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type ActionNodeFactory struct {
	performer protocol.ActionPerformer
}

func NewActionNodeFactory(performer protocol.ActionPerformer) protocol.NodeFactory {
	return &ActionNodeFactory{performer: performer}
}

func (f *ActionNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewActionNode(id, config, f.performer)
}

func (f *ActionNodeFactory) ID() models.NodeType {
	return models.NodeTypeAction
}

func (f *ActionNodeFactory) Name() string {
	return "Action"
}

func (f *ActionNodeFactory) Description() string {
	return "Performs an external side effect such as a notification or system call"
}

func (f *ActionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action_type": map[string]any{
				"type":        "string",
				"description": "Action identifier passed to the performer, e.g. notification_send",
			},
			"params": map[string]any{
				"type":        "object",
				"description": "Action parameters. Values support templating.",
			},
		},
		"required": []string{"action_type"},
	}
}
