// Package rollback provides the node that forces a canary rollback from
// inside a workflow.
package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

// CanaryManager is the slice of the canary manager this node needs.
type CanaryManager interface {
	Rollback(ctx context.Context, deploymentID, reason string) (*models.CanaryDeployment, error)
}

// RollbackNode rolls an in-flight canary deployment back to its old version.
type RollbackNode struct {
	id           string
	deploymentID string
	reason       string
	manager      CanaryManager
}

func NewRollbackNode(id string, config map[string]any, manager CanaryManager) (*RollbackNode, error) {
	deploymentID, ok := config["deployment_id"].(string)
	if !ok || deploymentID == "" {
		return nil, errors.New("missing required field 'deployment_id'")
	}

	reason, _ := config["reason"].(string)
	if reason == "" {
		reason = "manual rollback requested by workflow"
	}

	return &RollbackNode{id: id, deploymentID: deploymentID, reason: reason, manager: manager}, nil
}

func (n *RollbackNode) ID() string            { return n.id }
func (n *RollbackNode) Type() models.NodeType { return models.NodeTypeRollback }

func (n *RollbackNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	deploymentID, err := template.RenderWithContext(n.deploymentID, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("rendering deployment_id: %w", err), false), nil
	}

	reason, err := template.RenderWithContext(n.reason, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("rendering reason: %w", err), false), nil
	}

	deployment, err := n.manager.Rollback(ctx, fmt.Sprint(deploymentID), fmt.Sprint(reason))
	if err != nil {
		return protocol.Fail(fmt.Errorf("rolling back %v: %w", deploymentID, err), true), nil
	}

	return protocol.Success(map[string]any{
		"deployment_id":   deployment.ID,
		"status":          string(deployment.Status),
		"rollback_reason": deployment.RollbackReason,
		"active_version":  deployment.OldVersion,
	}, ""), nil
}
