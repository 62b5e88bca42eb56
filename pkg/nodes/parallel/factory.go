package parallel

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// ParallelNodeFactory creates ParallelNode instances.
type ParallelNodeFactory struct{}

func NewParallelNodeFactory() protocol.NodeFactory {
	return &ParallelNodeFactory{}
}

func (f *ParallelNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewParallelNode(id, config)
}

func (f *ParallelNodeFactory) ID() models.NodeType {
	return models.NodeTypeParallel
}

func (f *ParallelNodeFactory) Name() string {
	return "Parallel"
}

func (f *ParallelNodeFactory) Description() string {
	return "Fans execution out into named concurrent branches"
}

func (f *ParallelNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"branches": map[string]any{
				"type":        "array",
				"description": "Names of the branches to run concurrently",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
			},
			"join": map[string]any{
				"type":        "string",
				"description": "How branch outcomes combine",
				"enum":        []string{JoinFailFast, JoinWaitAll},
				"default":     JoinWaitAll,
			},
		},
		"required": []string{"branches"},
	}
}
