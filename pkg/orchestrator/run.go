package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stratumflow/stratum/pkg/compensation"
	"github.com/stratumflow/stratum/pkg/events"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/nodes/parallel"
	"github.com/stratumflow/stratum/pkg/nodes/wait"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// run is the in-memory execution state of one instance.
type run struct {
	engine   *Engine
	def      *models.WorkflowDefinition
	instance *models.WorkflowInstance
	ectx     *models.ExecutionContext

	nodes map[string]protocol.Node

	// armed marks nodes that have been reached by the executed flow. A node
	// runs once all of its armed predecessors have completed.
	armed map[string]bool

	// joinPolicy is inherited along edges from the nearest upstream parallel
	// node and controls what a failure does to in-flight siblings.
	joinPolicy map[string]string

	totalForward int
}

type waveResult struct {
	nodeID   string
	outcome  *protocol.NodeOutcome
	attempts int
	duration time.Duration
}

func (e *Engine) runInstance(ctx context.Context, def *models.WorkflowDefinition, instance *models.WorkflowInstance, metadata map[string]any) error {
	r, err := e.newRun(ctx, def, instance, metadata)
	if err != nil {
		return err
	}

	return r.loop(ctx)
}

func (e *Engine) newRun(ctx context.Context, def *models.WorkflowDefinition, instance *models.WorkflowInstance, metadata map[string]any) (*run, error) {
	r := &run{
		engine:     e,
		def:        def,
		instance:   instance,
		nodes:      make(map[string]protocol.Node),
		armed:      make(map[string]bool),
		joinPolicy: make(map[string]string),
	}

	for _, n := range def.Nodes {
		if !n.Enabled || n.Type == models.NodeTypeCompensation {
			continue
		}

		node, err := e.registry.Create(ctx, n.Type, n.ID, n.Config)
		if err != nil {
			return nil, &ValidationError{DefinitionID: def.ID, Problems: []string{err.Error()}}
		}

		r.nodes[n.ID] = node
		r.totalForward++
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}

	r.ectx = &models.ExecutionContext{
		InstanceID:   instance.ID,
		DefinitionID: instance.DefinitionID,
		TriggerData:  instance.TriggerData,
		Variables:    instance.Variables,
		NodeOutputs:  instance.Context,
		Metadata:     metadata,
	}

	r.rebuildArming()

	return r, nil
}

// rebuildArming reconstructs the reached set from recorded outputs, so a
// resumed instance continues along the same routed paths.
func (r *run) rebuildArming() {
	for _, n := range forwardEntryNodes(r.def) {
		r.armed[n.ID] = true
	}

	for nodeID, out := range r.instance.Context {
		if out.Status != models.NodeStatusSuccess {
			continue
		}

		defNode := r.def.NodeByID(nodeID)
		if defNode == nil {
			continue
		}

		if defNode.Type == models.NodeTypeParallel {
			r.armBranches(nodeID, out.Data)

			continue
		}

		r.armSuccessors(nodeID, out.Port)
	}

	if r.instance.SuspendedNodeID != "" {
		r.armed[r.instance.SuspendedNodeID] = true
	}
}

func (r *run) armSuccessors(nodeID, port string) {
	inherited := r.joinPolicy[nodeID]

	for _, edge := range r.def.Successors(nodeID, port) {
		r.armed[edge.To] = true

		if inherited != "" && r.joinPolicy[edge.To] == "" {
			r.joinPolicy[edge.To] = inherited
		}
	}
}

func (r *run) armBranches(nodeID string, output map[string]any) {
	branches, _ := output["branches"].([]any)
	join, _ := output["join"].(string)

	for _, branchAny := range branches {
		branch, ok := branchAny.(string)
		if !ok {
			continue
		}

		for _, edge := range r.def.Successors(nodeID, branch) {
			r.armed[edge.To] = true
			r.joinPolicy[edge.To] = join
		}
	}
}

func (r *run) executed(nodeID string) bool {
	out, ok := r.instance.Context[nodeID]

	return ok && out.Status == models.NodeStatusSuccess
}

// readySet returns armed nodes whose armed predecessors have all completed.
func (r *run) readySet() []string {
	var ready []string

	for _, n := range r.def.Nodes {
		if !r.armed[n.ID] || r.executed(n.ID) {
			continue
		}

		if _, known := r.nodes[n.ID]; !known {
			continue
		}

		blocked := false

		for _, pred := range r.def.Predecessors(n.ID) {
			if r.armed[pred] && !r.executed(pred) {
				blocked = true

				break
			}
		}

		if !blocked {
			ready = append(ready, n.ID)
		}
	}

	return ready
}

func (r *run) loop(ctx context.Context) error {
	for {
		if reason, ok := r.engine.cancelReason(r.instance.ID); ok || r.instance.CancelRequested {
			if reason == "" {
				reason = "cancel requested"
			}

			r.instance.CancelRequested = true

			return r.engine.finalizeCancelled(ctx, r.instance, reason)
		}

		ready := r.readySet()
		if len(ready) == 0 {
			return r.finalizeCompleted(ctx)
		}

		results := r.executeWave(ctx, ready)

		var suspended, failed *waveResult

		for i := range results {
			result := &results[i]

			switch result.outcome.Status {
			case protocol.OutcomeSuccess:
				if err := r.recordSuccess(ctx, result); err != nil {
					return err
				}
			case protocol.OutcomeSuspended:
				if suspended == nil {
					suspended = result
				}
			case protocol.OutcomeFailed:
				if failed == nil {
					failed = result
				}
			}
		}

		if failed != nil {
			nodeErr := &NodeExecutionError{
				NodeID:    failed.nodeID,
				Attempts:  failed.attempts,
				Retryable: failed.outcome.Retryable,
				Err:       failed.outcome.Err,
			}

			r.engine.publish(ctx, r.instance.ID, events.NodeFailed{
				BaseEvent: r.engine.baseEvent(events.NodeFailedEvent, r.instance),
				NodeID:    failed.nodeID,
				Error:     nodeErr.Err.Error(),
				Attempts:  failed.attempts,
				Retryable: failed.outcome.Retryable,
			})

			return r.engine.failInstance(ctx, r.def, r.instance, failed.nodeID, nodeErr)
		}

		if suspended != nil {
			return r.suspend(ctx, suspended)
		}
	}
}

// executeWave runs the ready nodes, concurrently when there is more than
// one. A fatal failure in a branch with fail_fast join cancels its siblings.
func (r *run) executeWave(ctx context.Context, ready []string) []waveResult {
	results := make([]waveResult, len(ready))

	if len(ready) == 1 {
		results[0] = r.executeNode(ctx, ready[0])

		return results
	}

	group, waveCtx := errgroup.WithContext(ctx)

	for i, nodeID := range ready {
		group.Go(func() error {
			results[i] = r.executeNode(waveCtx, nodeID)

			if results[i].outcome.Status == protocol.OutcomeFailed && r.joinPolicy[nodeID] == parallel.JoinFailFast {
				return fmt.Errorf("branch node '%s' failed", nodeID)
			}

			return nil
		})
	}

	// The error only serves to cancel siblings; outcomes carry the detail.
	_ = group.Wait()

	return results
}

// executeNode dispatches one node with retry. Retryable failures back off
// exponentially until the attempt cap, then escalate to fatal.
func (r *run) executeNode(ctx context.Context, nodeID string) waveResult {
	node := r.nodes[nodeID]
	start := time.Now()

	var outcome *protocol.NodeOutcome

	attempt := 0

	for {
		attempt++

		var err error

		outcome, err = node.Execute(ctx, r.ectx)
		if err != nil {
			// Nodes report expected failures through the outcome; a raw
			// error is a contract breach and fatal.
			outcome = protocol.Fail(err, false)
		}

		if outcome.Status != protocol.OutcomeFailed || !outcome.Retryable || attempt >= r.engine.config.MaxAttempts {
			break
		}

		backoff := r.engine.config.BackoffBase << (attempt - 1)

		r.engine.metrics.NodeRetried(string(node.Type()))
		r.engine.logger.Warn("node failed, retrying",
			"instance_id", r.instance.ID,
			"node_id", nodeID,
			"attempt", attempt,
			"backoff", backoff,
			"error", outcome.Err)

		select {
		case <-ctx.Done():
			return waveResult{nodeID: nodeID, outcome: protocol.Fail(ctx.Err(), false), attempts: attempt, duration: time.Since(start)}
		case <-time.After(backoff):
		}
	}

	duration := time.Since(start)
	r.engine.metrics.ObserveNode(string(node.Type()), string(outcome.Status), duration)

	return waveResult{nodeID: nodeID, outcome: outcome, attempts: attempt, duration: duration}
}

func (r *run) recordSuccess(ctx context.Context, result *waveResult) error {
	output := &models.NodeOutput{
		NodeID:      result.nodeID,
		Data:        result.outcome.Output,
		Port:        result.outcome.Port,
		Status:      models.NodeStatusSuccess,
		CompletedAt: time.Now().UTC(),
	}

	r.instance.AppendOutput(output)
	r.instance.UpdatedAt = output.CompletedAt
	r.ectx.NodeOutputs = r.instance.Context

	defNode := r.def.NodeByID(result.nodeID)
	if defNode != nil && defNode.Type == models.NodeTypeParallel {
		r.armBranches(result.nodeID, result.outcome.Output)
	} else {
		r.armSuccessors(result.nodeID, result.outcome.Port)
	}

	if err := r.engine.instances.Save(ctx, r.instance); err != nil {
		return err
	}

	r.checkpoint(ctx, result.nodeID)

	r.engine.publish(ctx, r.instance.ID, events.NodeFinished{
		BaseEvent:  r.engine.baseEvent(events.NodeFinishedEvent, r.instance),
		NodeID:     result.nodeID,
		Port:       result.outcome.Port,
		OutputData: result.outcome.Output,
		DurationMs: result.duration.Milliseconds(),
	})

	return nil
}

func (r *run) suspend(ctx context.Context, result *waveResult) error {
	r.instance.Status = models.InstanceStatusSuspended
	r.instance.SuspendedNodeID = result.nodeID
	r.instance.SuspendReason = result.outcome.Reason
	r.instance.UpdatedAt = time.Now().UTC()

	if err := r.engine.instances.Save(ctx, r.instance); err != nil {
		return err
	}

	r.checkpoint(ctx, result.nodeID)

	r.engine.metrics.InstanceTransition("suspended")
	r.engine.publish(ctx, r.instance.ID, events.InstanceSuspended{
		BaseEvent: r.engine.baseEvent(events.InstanceSuspendedEvent, r.instance),
		NodeID:    result.nodeID,
		Reason:    result.outcome.Reason,
	})

	if waitNode, ok := r.nodes[result.nodeID].(*wait.WaitNode); ok && waitNode.Timeout() > 0 {
		r.engine.scheduleWaitTimeout(r.instance.ID, result.nodeID, waitNode.Timeout())
	}

	r.engine.logger.Info("instance suspended",
		"instance_id", r.instance.ID,
		"node_id", result.nodeID,
		"reason", result.outcome.Reason)

	return nil
}

func (r *run) finalizeCompleted(ctx context.Context) error {
	r.engine.clearCancel(r.instance.ID)

	now := time.Now().UTC()
	r.instance.Status = models.InstanceStatusCompleted
	r.instance.UpdatedAt = now
	r.instance.CompletedAt = &now

	if err := r.engine.instances.Save(ctx, r.instance); err != nil {
		return err
	}

	if r.engine.checkpoints != nil {
		if err := r.engine.checkpoints.Discard(ctx, r.instance.ID); err != nil {
			r.engine.logger.Warn("failed to discard checkpoints", "instance_id", r.instance.ID, "error", err)
		}
	}

	r.engine.metrics.InstanceTransition("completed")
	r.engine.publish(ctx, r.instance.ID, events.InstanceCompleted{
		BaseEvent:      r.engine.baseEvent(events.InstanceCompletedEvent, r.instance),
		CompletedNodes: r.instance.CompletedNodes,
		Duration:       now.Sub(r.instance.CreatedAt),
	})

	r.engine.logger.Info("instance completed",
		"instance_id", r.instance.ID,
		"completed_nodes", len(r.instance.CompletedNodes))

	return nil
}

func (r *run) checkpoint(ctx context.Context, nodeID string) {
	if r.engine.checkpoints == nil {
		return
	}

	progress := 0.0
	if r.totalForward > 0 {
		progress = float64(len(r.instance.CompletedNodes)) / float64(r.totalForward)
	}

	_, err := r.engine.checkpoints.Capture(ctx, r.instance, nodeID, progress)
	r.engine.metrics.CheckpointSaved(err)

	if err != nil {
		r.engine.logger.Error("checkpoint capture failed",
			"instance_id", r.instance.ID,
			"node_id", nodeID,
			"error", err)
	}
}

// failInstance moves an instance to Failed and unwinds completed work
// through the compensation coordinator.
func (e *Engine) failInstance(ctx context.Context, def *models.WorkflowDefinition, instance *models.WorkflowInstance, nodeID string, cause error) error {
	e.clearCancel(instance.ID)

	instance.AppendOutput(&models.NodeOutput{
		NodeID:      nodeID,
		Status:      models.NodeStatusError,
		Error:       cause.Error(),
		CompletedAt: time.Now().UTC(),
	})

	now := time.Now().UTC()
	instance.Status = models.InstanceStatusFailed
	instance.FailedNodeID = nodeID
	instance.ErrorMessage = cause.Error()
	instance.UpdatedAt = now
	instance.CompletedAt = &now

	compensated := false

	if e.compensator != nil {
		ectx := &models.ExecutionContext{
			InstanceID:   instance.ID,
			DefinitionID: instance.DefinitionID,
			TriggerData:  instance.TriggerData,
			Variables:    instance.Variables,
			NodeOutputs:  instance.Context,
			Metadata:     map[string]any{},
		}

		compensators, err := e.buildCompensators(ctx, def)
		if err != nil {
			e.logger.Error("could not build compensators", "instance_id", instance.ID, "error", err)
		} else if len(compensators) > 0 {
			summary, err := e.compensator.Run(ctx, ectx, instance, compensators, e.config.CompensationStrategy)
			if err != nil {
				e.logger.Error("compensation run failed", "instance_id", instance.ID, "error", err)
			} else {
				instance.Compensation = summary
				compensated = summary.Failures == 0 && len(summary.Steps) > 0

				for _, step := range summary.Steps {
					e.metrics.CompensationStep(string(step.Status))
				}
			}
		}
	}

	if err := e.instances.Save(ctx, instance); err != nil {
		return err
	}

	if e.checkpoints != nil {
		if err := e.checkpoints.Discard(ctx, instance.ID); err != nil {
			e.logger.Warn("failed to discard checkpoints", "instance_id", instance.ID, "error", err)
		}
	}

	e.metrics.InstanceTransition("failed")
	e.publish(ctx, instance.ID, events.InstanceFailed{
		BaseEvent:    e.baseEvent(events.InstanceFailedEvent, instance),
		FailedNodeID: nodeID,
		Error:        cause.Error(),
		Compensated:  compensated,
	})

	e.logger.Error("instance failed",
		"instance_id", instance.ID,
		"node_id", nodeID,
		"error", cause)

	if instance.Compensation != nil && instance.Compensation.Failures > 0 {
		return fmt.Errorf("%w: %v", cause, &CompensationFailureError{
			InstanceID: instance.ID,
			Failures:   instance.Compensation.Failures,
		})
	}

	return cause
}

func (e *Engine) buildCompensators(ctx context.Context, def *models.WorkflowDefinition) ([]compensation.Compensator, error) {
	var compensators []compensation.Compensator

	for _, n := range def.Nodes {
		if n.Type != models.NodeTypeCompensation || !n.Enabled {
			continue
		}

		node, err := e.registry.Create(ctx, n.Type, n.ID, n.Config)
		if err != nil {
			return nil, err
		}

		comp, ok := node.(compensation.Compensator)
		if !ok {
			return nil, fmt.Errorf("node '%s' does not implement compensation", n.ID)
		}

		compensators = append(compensators, comp)
	}

	return compensators, nil
}
