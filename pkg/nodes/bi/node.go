// Package bi provides the analytics delegation node.
package bi

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

// BINode delegates to the external analytics collaborator. Analysis is
// read-only, so failures are retryable.
type BINode struct {
	id        string
	analysis  string
	params    map[string]any
	analytics protocol.Analytics
}

func NewBINode(id string, config map[string]any, analytics protocol.Analytics) (*BINode, error) {
	analysis, ok := config["analysis"].(string)
	if !ok || analysis == "" {
		return nil, errors.New("missing required field 'analysis'")
	}

	params, _ := config["params"].(map[string]any)

	return &BINode{
		id:        id,
		analysis:  analysis,
		params:    params,
		analytics: analytics,
	}, nil
}

func (n *BINode) ID() string            { return n.id }
func (n *BINode) Type() models.NodeType { return models.NodeTypeBI }

func (n *BINode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	params, err := template.RenderMap(n.params, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("params rendering failed: %w", err), false), nil
	}

	result, err := n.analytics.Analyze(ctx, n.analysis, params)
	if err != nil {
		return protocol.Fail(fmt.Errorf("analysis '%s' failed: %w", n.analysis, err), true), nil
	}

	return protocol.Success(result, ""), nil
}
