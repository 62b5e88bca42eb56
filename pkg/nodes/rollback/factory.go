package rollback

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// RollbackNodeFactory creates RollbackNode instances bound to the canary
// manager.
type RollbackNodeFactory struct {
	manager CanaryManager
}

func NewRollbackNodeFactory(manager CanaryManager) protocol.NodeFactory {
	return &RollbackNodeFactory{manager: manager}
}

func (f *RollbackNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewRollbackNode(id, config, f.manager)
}

func (f *RollbackNodeFactory) ID() models.NodeType {
	return models.NodeTypeRollback
}

func (f *RollbackNodeFactory) Name() string {
	return "Canary Rollback"
}

func (f *RollbackNodeFactory) Description() string {
	return "Forces an in-flight canary deployment back to its old version"
}

func (f *RollbackNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"deployment_id": map[string]any{
				"type":        "string",
				"description": "Deployment to roll back; supports templates",
			},
			"reason": map[string]any{
				"type": "string",
			},
		},
		"required": []string{"deployment_id"},
	}
}
