// Package wait provides the external-signal suspension node.
package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// WaitNode suspends the instance until a signal arrives or the configured
// timeout fires. The orchestrator owns the timer; a timeout is a fail-fast
// outcome, never retried.
type WaitNode struct {
	id      string
	reason  string
	timeout time.Duration
}

func NewWaitNode(id string, config map[string]any) (*WaitNode, error) {
	reason, _ := config["reason"].(string)
	if reason == "" {
		reason = "waiting for external signal"
	}

	var timeout time.Duration
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &WaitNode{id: id, reason: reason, timeout: timeout}, nil
}

func (n *WaitNode) ID() string            { return n.id }
func (n *WaitNode) Type() models.NodeType { return models.NodeTypeWait }

// Timeout returns the configured deadline, zero meaning wait forever.
func (n *WaitNode) Timeout() time.Duration { return n.timeout }

func (n *WaitNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	// A recorded signal payload means this execution is the wake-up pass.
	if payload, ok := signalPayload(ectx, n.id); ok {
		return protocol.Success(payload, ""), nil
	}

	reason := n.reason
	if n.timeout > 0 {
		reason = fmt.Sprintf("%s (timeout %s)", reason, n.timeout)
	}

	return protocol.Suspend(reason), nil
}

func signalPayload(ectx *models.ExecutionContext, nodeID string) (map[string]any, bool) {
	raw, ok := ectx.Metadata[signalKey(nodeID)]
	if !ok {
		return nil, false
	}

	payload, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{"signal": raw}, true
	}

	return payload, true
}

// SignalKey names the metadata slot the orchestrator fills when a signal
// arrives for a suspended wait node.
func SignalKey(nodeID string) string { return signalKey(nodeID) }

func signalKey(nodeID string) string { return "signal:" + nodeID }
