// Package data provides the read-only data query node.
package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

// DataNode queries an external data source and records the result. Reads
// have no side effects, so transient failures are always retryable.
type DataNode struct {
	id     string
	source string
	query  map[string]any
	client protocol.DataSource
}

func NewDataNode(id string, config map[string]any, client protocol.DataSource) (*DataNode, error) {
	source, ok := config["source"].(string)
	if !ok || source == "" {
		return nil, errors.New("missing required field 'source'")
	}

	query, _ := config["query"].(map[string]any)

	return &DataNode{
		id:     id,
		source: source,
		query:  query,
		client: client,
	}, nil
}

func (n *DataNode) ID() string            { return n.id }
func (n *DataNode) Type() models.NodeType { return models.NodeTypeData }

func (n *DataNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	query, err := template.RenderMap(n.query, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("query rendering failed: %w", err), false), nil
	}

	result, err := n.client.Query(ctx, n.source, query)
	if err != nil {
		return protocol.Fail(fmt.Errorf("data source query failed: %w", err), true), nil
	}

	return protocol.Success(result, ""), nil
}
