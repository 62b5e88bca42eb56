package code

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type CodeNodeFactory struct {
	runner protocol.ScriptRunner
}

func NewCodeNodeFactory(runner protocol.ScriptRunner) protocol.NodeFactory {
	return &CodeNodeFactory{runner: runner}
}

func (f *CodeNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewCodeNode(id, config, f.runner)
}

func (f *CodeNodeFactory) ID() models.NodeType {
	return models.NodeTypeCode
}

func (f *CodeNodeFactory) Name() string {
	return "Code"
}

func (f *CodeNodeFactory) Description() string {
	return "Executes a sandboxed expression against the instance context"
}

func (f *CodeNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"script": map[string]any{
				"type":        "string",
				"description": "Expression or script to evaluate. Script errors are fatal.",
			},
		},
		"required": []string{"script"},
	}
}
