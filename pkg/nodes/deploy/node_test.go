package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type stubManager struct {
	created *models.CanaryDeployment
	started string
}

func (s *stubManager) CreateDeployment(_ context.Context, d *models.CanaryDeployment) (*models.CanaryDeployment, error) {
	d.ID = "dep-1"
	d.Status = models.DeploymentStatusDraft
	s.created = d

	return d, nil
}

func (s *stubManager) StartCanary(_ context.Context, deploymentID string) (*models.CanaryDeployment, error) {
	s.started = deploymentID
	s.created.Status = models.DeploymentStatusCanary

	return s.created, nil
}

func deployConfig() map[string]any {
	return map[string]any{
		"target_type": "workflow",
		"target_id":   "wf-1",
		"old_version": "v1",
		"new_version": "v2",
	}
}

func TestNewDeployNodeRequiresOldVersion(t *testing.T) {
	config := deployConfig()
	delete(config, "old_version")

	_, err := NewDeployNode("rollout", config, &stubManager{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "old_version")

	config["old_version"] = ""
	_, err = NewDeployNode("rollout", config, &stubManager{})
	require.Error(t, err)
}

func TestDeployNodeCreatesAndStartsCanary(t *testing.T) {
	manager := &stubManager{}
	node, err := NewDeployNode("rollout", deployConfig(), manager)
	require.NoError(t, err)

	outcome, err := node.Execute(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"})
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "dep-1", outcome.Output["deployment_id"])
	assert.Equal(t, "v1", outcome.Output["old_version"])
	assert.Equal(t, "v2", outcome.Output["new_version"])
	assert.Equal(t, "dep-1", manager.started)
	assert.Equal(t, "v1", manager.created.OldVersion)
}
