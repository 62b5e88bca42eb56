// Package loop provides the bounded foreach node. Iteration happens inside a
// single node execution so the instance context stays append-only: one output
// entry holds all per-item results.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

const defaultMaxIterations = 100

// LoopNode renders a per-item template over a resolved item list.
type LoopNode struct {
	id            string
	items         any
	itemTemplate  map[string]any
	maxIterations int
}

func NewLoopNode(id string, config map[string]any) (*LoopNode, error) {
	items, ok := config["items"]
	if !ok {
		return nil, errors.New("missing required field 'items'")
	}

	switch items.(type) {
	case string, []any:
	default:
		return nil, errors.New("'items' must be a template string or a list")
	}

	itemTemplate, ok := config["item_template"].(map[string]any)
	if !ok || len(itemTemplate) == 0 {
		return nil, errors.New("missing required field 'item_template'")
	}

	maxIterations := defaultMaxIterations
	if v, ok := config["max_iterations"].(float64); ok {
		if v < 1 {
			return nil, fmt.Errorf("max_iterations %v must be at least 1", v)
		}
		maxIterations = int(v)
	}

	return &LoopNode{
		id:            id,
		items:         items,
		itemTemplate:  itemTemplate,
		maxIterations: maxIterations,
	}, nil
}

func (n *LoopNode) ID() string            { return n.id }
func (n *LoopNode) Type() models.NodeType { return models.NodeTypeLoop }

func (n *LoopNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	items, err := n.resolveItems(ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("resolving items: %w", err), false), nil
	}

	truncated := false
	if len(items) > n.maxIterations {
		items = items[:n.maxIterations]
		truncated = true
	}

	results := make([]any, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return protocol.Fail(fmt.Errorf("loop interrupted at iteration %d: %w", i, err), true), nil
		}

		scoped := ectx.Clone()
		if scoped.Variables == nil {
			scoped.Variables = make(map[string]any, 2)
		}
		scoped.Variables["item"] = item
		scoped.Variables["item_index"] = float64(i)

		rendered, err := template.RenderMap(n.itemTemplate, scoped)
		if err != nil {
			return protocol.Fail(fmt.Errorf("iteration %d: %w", i, err), false), nil
		}

		results = append(results, rendered)
	}

	return protocol.Success(map[string]any{
		"iterations": float64(len(results)),
		"results":    results,
		"truncated":  truncated,
	}, ""), nil
}

func (n *LoopNode) resolveItems(ectx *models.ExecutionContext) ([]any, error) {
	switch v := n.items.(type) {
	case []any:
		out, err := template.RenderMap(map[string]any{"items": v}, ectx)
		if err != nil {
			return nil, err
		}

		items, _ := out["items"].([]any)

		return items, nil
	case string:
		rendered, err := template.RenderWithContext(v, ectx)
		if err != nil {
			return nil, err
		}

		items, ok := rendered.([]any)
		if !ok {
			return nil, fmt.Errorf("items template resolved to %T, want a list", rendered)
		}

		return items, nil
	default:
		return nil, fmt.Errorf("unsupported items type %T", n.items)
	}
}
