// Package compensation unwinds partially completed instances. After a fatal
// failure the coordinator walks the completed nodes in reverse order and runs
// each one's compensation counterpart. Nodes without a counterpart are
// skipped; a failing undo step is recorded and the walk continues.
package compensation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stratumflow/stratum/pkg/eventbus"
	"github.com/stratumflow/stratum/pkg/events"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// Compensator undoes the effects of one forward node. The compensation node
// type implements it.
type Compensator interface {
	ID() string
	Compensates() string
	Compensate(ctx context.Context, ectx *models.ExecutionContext, forwardOutput map[string]any) (*protocol.NodeOutcome, error)
}

// Coordinator runs the unwind.
type Coordinator struct {
	bus    eventbus.EventPublisher
	logger *slog.Logger
}

func NewCoordinator(bus eventbus.EventPublisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{bus: bus, logger: logger}
}

// Run unwinds the instance using the given compensators, newest completed
// node first. It returns the summary even when steps failed; the caller
// decides whether remaining failures are fatal.
func (c *Coordinator) Run(
	ctx context.Context,
	ectx *models.ExecutionContext,
	instance *models.WorkflowInstance,
	compensators []Compensator,
	strategy models.CompensationStrategy,
) (*models.CompensationSummary, error) {
	byForwardNode := make(map[string]Compensator, len(compensators))
	for _, comp := range compensators {
		byForwardNode[comp.Compensates()] = comp
	}

	summary := &models.CompensationSummary{
		Strategy:  strategy,
		StartedAt: time.Now().UTC(),
	}

	for i := len(instance.CompletedNodes) - 1; i >= 0; i-- {
		nodeID := instance.CompletedNodes[i]

		comp, ok := byForwardNode[nodeID]
		if !ok {
			summary.Steps = append(summary.Steps, models.CompensationStep{
				NodeID:      nodeID,
				Status:      models.CompensationStepSkipped,
				CompletedAt: time.Now().UTC(),
			})

			continue
		}

		summary.Steps = append(summary.Steps, c.runStep(ctx, ectx, instance, nodeID, comp))
	}

	for _, step := range summary.Steps {
		if step.Status == models.CompensationStepFailed {
			summary.Failures++
		}
	}

	summary.FinishedAt = time.Now().UTC()

	c.logger.Info("compensation finished",
		"instance_id", instance.ID,
		"steps", len(summary.Steps),
		"failures", summary.Failures)

	c.publishFinished(ctx, instance, summary)

	return summary, nil
}

func (c *Coordinator) runStep(
	ctx context.Context,
	ectx *models.ExecutionContext,
	instance *models.WorkflowInstance,
	nodeID string,
	comp Compensator,
) models.CompensationStep {
	step := models.CompensationStep{
		NodeID:             nodeID,
		CompensationNodeID: comp.ID(),
	}

	var forwardOutput map[string]any
	if out, ok := instance.Context[nodeID]; ok {
		forwardOutput = out.Data
	}

	outcome, err := comp.Compensate(ctx, ectx, forwardOutput)

	switch {
	case err != nil:
		step.Status = models.CompensationStepFailed
		step.Error = err.Error()
	case outcome.Status == protocol.OutcomeFailed:
		step.Status = models.CompensationStepFailed
		if outcome.Err != nil {
			step.Error = outcome.Err.Error()
		}
	default:
		step.Status = models.CompensationStepCompensated
	}

	if step.Status == models.CompensationStepFailed {
		c.logger.Error("compensation step failed",
			"instance_id", instance.ID,
			"node_id", nodeID,
			"compensation_node_id", comp.ID(),
			"error", step.Error)
	}

	step.CompletedAt = time.Now().UTC()

	return step
}

func (c *Coordinator) publishFinished(ctx context.Context, instance *models.WorkflowInstance, summary *models.CompensationSummary) {
	if c.bus == nil {
		return
	}

	event := events.CompensationFinished{
		BaseEvent: events.BaseEvent{
			ID:           uuid.New().String(),
			Type:         events.CompensationFinishedEvent,
			Timestamp:    summary.FinishedAt,
			DefinitionID: instance.DefinitionID,
			InstanceID:   instance.ID,
		},
		Strategy: summary.Strategy,
		Steps:    len(summary.Steps),
		Failures: summary.Failures,
	}

	if err := c.bus.Publish(ctx, instance.ID, event); err != nil {
		c.logger.Warn("failed to publish compensation event", "error", err)
	}
}
