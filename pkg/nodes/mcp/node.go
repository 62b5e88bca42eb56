// Package mcp provides the external tool-call node.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

const defaultTimeout = 30 * time.Second

// MCPNode invokes an external tool through the tool-call collaborator with a
// declared deadline. A deadline hit is a fail-fast outcome, not a retry.
type MCPNode struct {
	id      string
	tool    string
	args    map[string]any
	timeout time.Duration
	caller  protocol.ToolCaller
}

func NewMCPNode(id string, config map[string]any, caller protocol.ToolCaller) (*MCPNode, error) {
	tool, ok := config["tool"].(string)
	if !ok || tool == "" {
		return nil, errors.New("missing required field 'tool'")
	}

	args, _ := config["args"].(map[string]any)

	timeout := defaultTimeout
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &MCPNode{
		id:      id,
		tool:    tool,
		args:    args,
		timeout: timeout,
		caller:  caller,
	}, nil
}

func (n *MCPNode) ID() string            { return n.id }
func (n *MCPNode) Type() models.NodeType { return models.NodeTypeMCP }

func (n *MCPNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	args, err := template.RenderMap(n.args, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("args rendering failed: %w", err), false), nil
	}

	result, err := n.caller.Call(ctx, n.tool, args, n.timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return protocol.Fail(fmt.Errorf("tool '%s' deadline exceeded after %s: %w", n.tool, n.timeout, err), false), nil
		}

		return protocol.Fail(fmt.Errorf("tool '%s' call failed: %w", n.tool, err), true), nil
	}

	return protocol.Success(result, ""), nil
}
