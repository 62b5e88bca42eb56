package compensation

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type recordingCompensator struct {
	id          string
	compensates string
	fail        bool
	calls       *[]string
}

func (r *recordingCompensator) ID() string          { return r.id }
func (r *recordingCompensator) Compensates() string { return r.compensates }

func (r *recordingCompensator) Compensate(ctx context.Context, ectx *models.ExecutionContext, forwardOutput map[string]any) (*protocol.NodeOutcome, error) {
	*r.calls = append(*r.calls, r.compensates)

	if r.fail {
		return nil, errors.New("undo failed")
	}

	return protocol.Success(map[string]any{"compensates": r.compensates}, ""), nil
}

func instanceWithCompleted(nodes ...string) *models.WorkflowInstance {
	instance := &models.WorkflowInstance{
		ID:             "inst-1",
		DefinitionID:   "def-1",
		CompletedNodes: nodes,
		Context:        make(map[string]*models.NodeOutput, len(nodes)),
	}
	for _, n := range nodes {
		instance.Context[n] = &models.NodeOutput{
			NodeID: n,
			Data:   map[string]any{"from": n},
			Status: models.NodeStatusSuccess,
		}
	}

	return instance
}

func TestCoordinatorRunsInReverseOrderSkippingUncovered(t *testing.T) {
	var calls []string

	coordinator := NewCoordinator(nil, slog.Default())
	instance := instanceWithCompleted("a", "b", "c")

	summary, err := coordinator.Run(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"}, instance,
		[]Compensator{
			&recordingCompensator{id: "undo-a", compensates: "a", calls: &calls},
			&recordingCompensator{id: "undo-c", compensates: "c", calls: &calls},
		}, models.CompensationIgnore)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a"}, calls)
	require.Len(t, summary.Steps, 3)
	assert.Equal(t, models.CompensationStepCompensated, summary.Steps[0].Status)
	assert.Equal(t, models.CompensationStepSkipped, summary.Steps[1].Status)
	assert.Equal(t, "b", summary.Steps[1].NodeID)
	assert.Zero(t, summary.Failures)
}

func TestCoordinatorContinuesPastFailedStep(t *testing.T) {
	var calls []string

	coordinator := NewCoordinator(nil, slog.Default())
	instance := instanceWithCompleted("a", "b")

	summary, err := coordinator.Run(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"}, instance,
		[]Compensator{
			&recordingCompensator{id: "undo-a", compensates: "a", calls: &calls},
			&recordingCompensator{id: "undo-b", compensates: "b", fail: true, calls: &calls},
		}, models.CompensationMarkAndReprocess)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, calls)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, models.CompensationStepFailed, summary.Steps[0].Status)
	assert.Equal(t, "undo failed", summary.Steps[0].Error)
	assert.Equal(t, models.CompensationStepCompensated, summary.Steps[1].Status)
}
