package deploy

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// DeployNodeFactory creates DeployNode instances bound to the canary manager.
type DeployNodeFactory struct {
	manager CanaryManager
}

func NewDeployNodeFactory(manager CanaryManager) protocol.NodeFactory {
	return &DeployNodeFactory{manager: manager}
}

func (f *DeployNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewDeployNode(id, config, f.manager)
}

func (f *DeployNodeFactory) ID() models.NodeType {
	return models.NodeTypeDeploy
}

func (f *DeployNodeFactory) Name() string {
	return "Canary Deploy"
}

func (f *DeployNodeFactory) Description() string {
	return "Creates a canary deployment and opens it to traffic"
}

func (f *DeployNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target_type": map[string]any{
				"type":        "string",
				"description": "Kind of deployable target, e.g. workflow or model",
			},
			"target_id":   map[string]any{"type": "string"},
			"old_version": map[string]any{"type": "string"},
			"new_version": map[string]any{"type": "string"},
			"traffic_fraction": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
				"default": 0.1,
			},
			"auto_rollback": map[string]any{
				"type":    "boolean",
				"default": true,
			},
		},
		"required": []string{"target_type", "target_id", "old_version", "new_version"},
	}
}
