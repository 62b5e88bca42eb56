package mcp

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type MCPNodeFactory struct {
	caller protocol.ToolCaller
}

func NewMCPNodeFactory(caller protocol.ToolCaller) protocol.NodeFactory {
	return &MCPNodeFactory{caller: caller}
}

func (f *MCPNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewMCPNode(id, config, f.caller)
}

func (f *MCPNodeFactory) ID() models.NodeType {
	return models.NodeTypeMCP
}

func (f *MCPNodeFactory) Name() string {
	return "Tool Call"
}

func (f *MCPNodeFactory) Description() string {
	return "Invokes an external tool with a declared timeout"
}

func (f *MCPNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool": map[string]any{
				"type":        "string",
				"description": "Tool identifier understood by the tool-call collaborator",
			},
			"args": map[string]any{
				"type":        "object",
				"description": "Tool arguments. Values support templating.",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Deadline for the call. Defaults to 30 seconds.",
				"minimum":     1,
			},
		},
		"required": []string{"tool"},
	}
}
