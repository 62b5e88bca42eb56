package data

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// DataNodeFactory creates DataNode instances bound to a data source.
type DataNodeFactory struct {
	client protocol.DataSource
}

func NewDataNodeFactory(client protocol.DataSource) protocol.NodeFactory {
	return &DataNodeFactory{client: client}
}

func (f *DataNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewDataNode(id, config, f.client)
}

func (f *DataNodeFactory) ID() models.NodeType {
	return models.NodeTypeData
}

func (f *DataNodeFactory) Name() string {
	return "Data Query"
}

func (f *DataNodeFactory) Description() string {
	return "Read-only query against an external data source"
}

func (f *DataNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{
				"type":        "string",
				"description": "Identifier of the data source to query",
			},
			"query": map[string]any{
				"type":        "object",
				"description": "Source-specific query parameters. Values support templating.",
			},
		},
		"required": []string{"source"},
	}
}
