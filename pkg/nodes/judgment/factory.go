package judgment

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type JudgmentNodeFactory struct {
	policy protocol.JudgmentPolicy
}

func NewJudgmentNodeFactory(policy protocol.JudgmentPolicy) protocol.NodeFactory {
	return &JudgmentNodeFactory{policy: policy}
}

func (f *JudgmentNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewJudgmentNode(id, config, f.policy)
}

func (f *JudgmentNodeFactory) ID() models.NodeType {
	return models.NodeTypeJudgment
}

func (f *JudgmentNodeFactory) Name() string {
	return "Judgment"
}

func (f *JudgmentNodeFactory) Description() string {
	return "Consults the external judgment policy and routes on the verdict"
}

func (f *JudgmentNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"policy_mode": map[string]any{
				"type":        "string",
				"description": "Mode passed through to the judgment policy collaborator",
			},
		},
	}
}
