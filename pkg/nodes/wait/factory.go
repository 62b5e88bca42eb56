package wait

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type WaitNodeFactory struct{}

func NewWaitNodeFactory() protocol.NodeFactory {
	return &WaitNodeFactory{}
}

func (f *WaitNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewWaitNode(id, config)
}

func (f *WaitNodeFactory) ID() models.NodeType {
	return models.NodeTypeWait
}

func (f *WaitNodeFactory) Name() string {
	return "Wait"
}

func (f *WaitNodeFactory) Description() string {
	return "Suspends the instance until an external signal or a timeout"
}

func (f *WaitNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Human-readable suspension reason",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Fail the instance if no signal arrives within this window. Zero waits forever.",
				"minimum":     0,
			},
		},
	}
}
