package approval

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type ApprovalNodeFactory struct {
	router DecisionRouter
}

func NewApprovalNodeFactory(router DecisionRouter) protocol.NodeFactory {
	return &ApprovalNodeFactory{router: router}
}

func (f *ApprovalNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewApprovalNode(id, config, f.router)
}

func (f *ApprovalNodeFactory) ID() models.NodeType {
	return models.NodeTypeApproval
}

func (f *ApprovalNodeFactory) Name() string {
	return "Approval"
}

func (f *ApprovalNodeFactory) Description() string {
	return "Gates execution on a human decision, short-circuited when the decision router resolves auto"
}

func (f *ApprovalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action_type": map[string]any{
				"type":        "string",
				"description": "Action type evaluated against the risk catalog",
			},
			"entity_id": map[string]any{
				"type":        "string",
				"description": "Deployable whose trust level gates the action. Defaults to the definition id.",
			},
		},
		"required": []string{"action_type"},
	}
}
