package bi

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type BINodeFactory struct {
	analytics protocol.Analytics
}

func NewBINodeFactory(analytics protocol.Analytics) protocol.NodeFactory {
	return &BINodeFactory{analytics: analytics}
}

func (f *BINodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewBINode(id, config, f.analytics)
}

func (f *BINodeFactory) ID() models.NodeType {
	return models.NodeTypeBI
}

func (f *BINodeFactory) Name() string {
	return "BI Analysis"
}

func (f *BINodeFactory) Description() string {
	return "Delegates a read-only analysis to the external analytics collaborator"
}

func (f *BINodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"analysis": map[string]any{
				"type":        "string",
				"description": "Analysis identifier understood by the analytics collaborator",
			},
			"params": map[string]any{
				"type":        "object",
				"description": "Analysis parameters. Values support templating.",
			},
		},
		"required": []string{"analysis"},
	}
}
