// Package deploy provides the node that starts a canary rollout from inside a
// workflow.
package deploy

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
	CreateDeployment(ctx context.Context, deployment *models.CanaryDeployment) (*models.CanaryDeployment, error)
	StartCanary(ctx context.Context, deploymentID string) (*models.CanaryDeployment, error)
}

// DeployNode creates a canary deployment and moves it into the canary phase.
type DeployNode struct {
	id              string
	targetType      string
	targetID        string
	oldVersion      string
	newVersion      string
	trafficFraction float64
	autoRollback    bool
	manager         CanaryManager
}

func NewDeployNode(id string, config map[string]any, manager CanaryManager) (*DeployNode, error) {
	targetType, ok := config["target_type"].(string)
	if !ok || targetType == "" {
		return nil, errors.New("missing required field 'target_type'")
	}

	targetID, ok := config["target_id"].(string)
	if !ok || targetID == "" {
		return nil, errors.New("missing required field 'target_id'")
	}

	newVersion, ok := config["new_version"].(string)
	if !ok || newVersion == "" {
		return nil, errors.New("missing required field 'new_version'")
	}

	oldVersion, ok := config["old_version"].(string)
	if !ok || oldVersion == "" {
		return nil, errors.New("missing required field 'old_version'")
	}

	trafficFraction := 0.1
	if v, ok := config["traffic_fraction"].(float64); ok {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("traffic_fraction %v out of range [0, 1]", v)
		}
		trafficFraction = v
	}

	autoRollback := true
	if v, ok := config["auto_rollback"].(bool); ok {
		autoRollback = v
	}

	return &DeployNode{
		id:              id,
		targetType:      targetType,
		targetID:        targetID,
		oldVersion:      oldVersion,
		newVersion:      newVersion,
		trafficFraction: trafficFraction,
		autoRollback:    autoRollback,
		manager:         manager,
	}, nil
}

func (n *DeployNode) ID() string            { return n.id }
func (n *DeployNode) Type() models.NodeType { return models.NodeTypeDeploy }

func (n *DeployNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	targetID, err := template.RenderWithContext(n.targetID, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("rendering target_id: %w", err), false), nil
	}

	newVersion, err := template.RenderWithContext(n.newVersion, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("rendering new_version: %w", err), false), nil
	}

	oldVersion, err := template.RenderWithContext(n.oldVersion, ectx)
	if err != nil {
		return protocol.Fail(fmt.Errorf("rendering old_version: %w", err), false), nil
	}

	deployment, err := n.manager.CreateDeployment(ctx, &models.CanaryDeployment{
		TargetType:      n.targetType,
		TargetID:        fmt.Sprint(targetID),
		OldVersion:      fmt.Sprint(oldVersion),
		NewVersion:      fmt.Sprint(newVersion),
		TrafficFraction: n.trafficFraction,
		AutoRollback:    n.autoRollback,
	})
	if err != nil {
		return protocol.Fail(fmt.Errorf("creating deployment: %w", err), true), nil
	}

	started, err := n.manager.StartCanary(ctx, deployment.ID)
	if err != nil {
		return protocol.Fail(fmt.Errorf("starting canary %s: %w", deployment.ID, err), true), nil
	}

	return protocol.Success(map[string]any{
		"deployment_id":    started.ID,
		"target_type":      started.TargetType,
		"target_id":        started.TargetID,
		"old_version":      started.OldVersion,
		"new_version":      started.NewVersion,
		"traffic_fraction": started.TrafficFraction,
		"status":           string(started.Status),
	}, ""), nil
}
