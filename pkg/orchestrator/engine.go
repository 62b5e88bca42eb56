// Package orchestrator executes workflow instances: it walks the definition
// graph, dispatches nodes through the registry, persists progress through
// the checkpoint store, and unwinds completed work when an instance fails.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratumflow/stratum/pkg/checkpoint"
	"github.com/stratumflow/stratum/pkg/compensation"
	"github.com/stratumflow/stratum/pkg/eventbus"
	"github.com/stratumflow/stratum/pkg/events"
	"github.com/stratumflow/stratum/pkg/metrics"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/nodes/approval"
	"github.com/stratumflow/stratum/pkg/nodes/wait"
	"github.com/stratumflow/stratum/pkg/persistence"
	"github.com/stratumflow/stratum/pkg/registry"
)

// Config tunes retry and compensation behavior.
type Config struct {
	// MaxAttempts bounds executions of a retryable node before the failure
	// escalates to fatal.
	MaxAttempts int

	// BackoffBase is the first retry delay; each further retry doubles it.
	BackoffBase time.Duration

	// CompensationStrategy applies to unwinds not overridden per deployment.
	CompensationStrategy models.CompensationStrategy
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:          3,
		BackoffBase:          500 * time.Millisecond,
		CompensationStrategy: models.CompensationIgnore,
	}
}

// Engine runs instances to a terminal state.
type Engine struct {
	definitions persistence.DefinitionRepository
	instances   persistence.InstanceRepository
	checkpoints *checkpoint.Store
	registry    *registry.Registry
	compensator *compensation.Coordinator
	bus         eventbus.EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	config      Config

	mu         sync.Mutex
	waitTimers map[string]*time.Timer
	cancels    map[string]string
}

func NewEngine(
	definitions persistence.DefinitionRepository,
	instances persistence.InstanceRepository,
	checkpoints *checkpoint.Store,
	reg *registry.Registry,
	compensator *compensation.Coordinator,
	bus eventbus.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	config Config,
) *Engine {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	if config.BackoffBase <= 0 {
		config.BackoffBase = 500 * time.Millisecond
	}

	if config.CompensationStrategy == "" {
		config.CompensationStrategy = models.CompensationIgnore
	}

	return &Engine{
		definitions: definitions,
		instances:   instances,
		checkpoints: checkpoints,
		registry:    reg,
		compensator: compensator,
		bus:         bus,
		metrics:     m,
		logger:      logger,
		config:      config,
		waitTimers:  make(map[string]*time.Timer),
		cancels:     make(map[string]string),
	}
}

// StartOptions carries the per-instance inputs.
type StartOptions struct {
	TriggerData map[string]any
	Variables   map[string]any
	SessionID   string
	UserID      string
}

// Start validates the definition, creates an instance and executes it until
// it completes, suspends or fails. The returned instance reflects the state
// reached; a node failure after compensation is also returned as an error.
func (e *Engine) Start(ctx context.Context, definitionID string, opts StartOptions) (*models.WorkflowInstance, error) {
	def, err := e.definitions.GetByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if err := e.registry.ValidateDefinition(def); err != nil {
		return nil, &ValidationError{DefinitionID: def.ID, Problems: []string{err.Error()}}
	}

	if err := validateGraph(def); err != nil {
		return nil, err
	}

	variables := make(map[string]any, len(def.Variables)+len(opts.Variables))
	for k, v := range def.Variables {
		variables[k] = v
	}
	for k, v := range opts.Variables {
		variables[k] = v
	}

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:                uuid.New().String(),
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		Status:            models.InstanceStatusRunning,
		TriggerData:       opts.TriggerData,
		Variables:         variables,
		Context:           make(map[string]*models.NodeOutput),
		SessionID:         opts.SessionID,
		UserID:            opts.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := e.instances.Save(ctx, instance); err != nil {
		return nil, err
	}

	e.metrics.InstanceTransition("started")
	e.publish(ctx, instance.ID, events.InstanceStarted{
		BaseEvent:         e.baseEvent(events.InstanceStartedEvent, instance),
		DefinitionVersion: def.Version,
		TriggerData:       opts.TriggerData,
	})

	e.logger.Info("instance started",
		"instance_id", instance.ID,
		"definition_id", def.ID,
		"definition_version", def.Version)

	return instance, e.runInstance(ctx, def, instance, nil)
}

// Resume restores an instance after a process restart: the latest checkpoint
// is merged over the persisted instance row and execution continues from the
// recorded node set.
func (e *Engine) Resume(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, fmt.Errorf("instance '%s': %w", instanceID, ErrCheckpointRestoreMiss)
		}

		return nil, err
	}

	if instance.Status.Terminal() {
		return instance, fmt.Errorf("instance '%s' already %s", instanceID, instance.Status)
	}

	def, err := e.definitions.GetByID(ctx, instance.DefinitionID)
	if err != nil {
		return nil, err
	}

	var sequence uint64

	if e.checkpoints != nil {
		cp, err := e.checkpoints.Restore(ctx, instanceID)
		switch {
		case err == nil:
			// The checkpoint may be ahead of the instance row if the
			// process died between the two writes.
			if len(cp.CompletedNodes) > len(instance.CompletedNodes) {
				instance.Context = cp.Context
				instance.CompletedNodes = cp.CompletedNodes
				instance.Variables = cp.Variables
			}

			sequence = cp.Sequence
		case errors.Is(err, checkpoint.ErrRestoreMiss):
			// Live instance state is enough to continue.
		default:
			return nil, err
		}
	}

	resumeNode := instance.SuspendedNodeID
	instance.Status = models.InstanceStatusRunning
	instance.SuspendedNodeID = ""
	instance.SuspendReason = ""

	if err := e.instances.Save(ctx, instance); err != nil {
		return nil, err
	}

	e.metrics.InstanceTransition("resumed")
	e.publish(ctx, instance.ID, events.InstanceResumed{
		BaseEvent:          e.baseEvent(events.InstanceResumedEvent, instance),
		NodeID:             resumeNode,
		CheckpointSequence: sequence,
	})

	return instance, e.runInstance(ctx, def, instance, nil)
}

// Signal wakes a WAIT node with an external payload.
func (e *Engine) Signal(ctx context.Context, instanceID, nodeID string, payload map[string]any) (*models.WorkflowInstance, error) {
	return e.wake(ctx, instanceID, nodeID, map[string]any{
		wait.SignalKey(nodeID): payload,
	})
}

// Decide resolves a suspended APPROVAL node with a human verdict.
func (e *Engine) Decide(ctx context.Context, instanceID, nodeID string, approved bool, decidedBy, reason string) (*models.WorkflowInstance, error) {
	return e.wake(ctx, instanceID, nodeID, map[string]any{
		approval.DecisionKey(nodeID): &approval.DecisionVerdict{
			Approved:  approved,
			DecidedBy: decidedBy,
			Reason:    reason,
		},
	})
}

// Cancel requests termination. A running instance observes the flag at its
// next node transition; a suspended one is finalized immediately.
func (e *Engine) Cancel(ctx context.Context, instanceID, reason string) (*models.WorkflowInstance, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status.Terminal() {
		return instance, fmt.Errorf("instance '%s' already %s", instanceID, instance.Status)
	}

	instance.CancelRequested = true

	if instance.Status == models.InstanceStatusSuspended {
		e.stopWaitTimer(instanceID)

		return instance, e.finalizeCancelled(ctx, instance, reason)
	}

	// The in-flight run loop holds its own instance copy, so the request is
	// recorded engine-side where the loop polls it between waves. The
	// persisted flag covers an instance picked up by Resume later.
	e.requestCancel(instanceID, reason)

	instance.UpdatedAt = time.Now().UTC()

	return instance, e.instances.Save(ctx, instance)
}

// Abort fails a non-terminal instance from the outside and unwinds its
// completed work through compensation. Used when an external control action,
// such as a canary rollback, invalidates in-flight executions.
func (e *Engine) Abort(ctx context.Context, instanceID string, cause error) (*models.WorkflowInstance, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status.Terminal() {
		return instance, fmt.Errorf("instance '%s' already %s", instanceID, instance.Status)
	}

	e.stopWaitTimer(instanceID)

	def, err := e.definitions.GetByID(ctx, instance.DefinitionID)
	if err != nil {
		return nil, err
	}

	// failInstance reports the cause back for the forward execution path;
	// for an external abort the cause is the input, not a failure of the
	// abort itself.
	if err := e.failInstance(ctx, def, instance, instance.SuspendedNodeID, cause); err != nil && !errors.Is(err, cause) {
		return instance, err
	}

	return instance, nil
}

// GetInstance returns the persisted state of one instance.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.instances.GetByID(ctx, instanceID)
}

// ListInstancesByStatus returns every instance currently in the given state.
func (e *Engine) ListInstancesByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	return e.instances.ListByStatus(ctx, status)
}

func (e *Engine) wake(ctx context.Context, instanceID, nodeID string, metadata map[string]any) (*models.WorkflowInstance, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceStatusSuspended {
		return instance, fmt.Errorf("instance '%s' is %s: %w", instanceID, instance.Status, ErrInstanceNotSuspended)
	}

	if instance.SuspendedNodeID != nodeID {
		return instance, fmt.Errorf("instance '%s' is suspended on node '%s', not '%s'",
			instanceID, instance.SuspendedNodeID, nodeID)
	}

	e.stopWaitTimer(instanceID)

	if instance.CancelRequested {
		return instance, e.finalizeCancelled(ctx, instance, "cancelled while suspended")
	}

	def, err := e.definitions.GetByID(ctx, instance.DefinitionID)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatusRunning
	instance.SuspendedNodeID = ""
	instance.SuspendReason = ""

	if err := e.instances.Save(ctx, instance); err != nil {
		return nil, err
	}

	e.metrics.InstanceTransition("resumed")
	e.publish(ctx, instance.ID, events.InstanceResumed{
		BaseEvent: e.baseEvent(events.InstanceResumedEvent, instance),
		NodeID:    nodeID,
	})

	return instance, e.runInstance(ctx, def, instance, metadata)
}

func (e *Engine) requestCancel(instanceID, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancels[instanceID] = reason
}

// cancelReason reports a pending cancel request for the instance.
func (e *Engine) cancelReason(instanceID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reason, ok := e.cancels[instanceID]

	return reason, ok
}

func (e *Engine) clearCancel(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.cancels, instanceID)
}

func (e *Engine) finalizeCancelled(ctx context.Context, instance *models.WorkflowInstance, reason string) error {
	e.clearCancel(instance.ID)

	now := time.Now().UTC()
	instance.Status = models.InstanceStatusCancelled
	instance.UpdatedAt = now
	instance.CompletedAt = &now
	instance.SuspendedNodeID = ""
	instance.SuspendReason = ""

	if err := e.instances.Save(ctx, instance); err != nil {
		return err
	}

	if e.checkpoints != nil {
		if err := e.checkpoints.Discard(ctx, instance.ID); err != nil {
			e.logger.Warn("failed to discard checkpoints", "instance_id", instance.ID, "error", err)
		}
	}

	e.metrics.InstanceTransition("cancelled")
	e.publish(ctx, instance.ID, events.InstanceCancelled{
		BaseEvent: e.baseEvent(events.InstanceCancelledEvent, instance),
		Reason:    reason,
	})

	e.logger.Info("instance cancelled", "instance_id", instance.ID, "reason", reason)

	return nil
}

func (e *Engine) scheduleWaitTimeout(instanceID, nodeID string, timeout time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.waitTimers[instanceID]; ok {
		existing.Stop()
	}

	e.waitTimers[instanceID] = time.AfterFunc(timeout, func() {
		e.expireWait(instanceID, nodeID, timeout)
	})
}

func (e *Engine) stopWaitTimer(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if timer, ok := e.waitTimers[instanceID]; ok {
		timer.Stop()
		delete(e.waitTimers, instanceID)
	}
}

// expireWait fires when a WAIT timeout elapses before a signal. The timeout
// is a fail-fast outcome: the instance fails and unwinds.
func (e *Engine) expireWait(instanceID, nodeID string, timeout time.Duration) {
	ctx := context.Background()

	e.stopWaitTimer(instanceID)

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		e.logger.Error("wait timeout fired for unknown instance", "instance_id", instanceID, "error", err)

		return
	}

	if instance.Status != models.InstanceStatusSuspended || instance.SuspendedNodeID != nodeID {
		return
	}

	def, err := e.definitions.GetByID(ctx, instance.DefinitionID)
	if err != nil {
		e.logger.Error("wait timeout could not load definition", "instance_id", instanceID, "error", err)

		return
	}

	timeoutErr := &TimeoutError{NodeID: nodeID, Timeout: timeout}

	e.logger.Warn("wait node timed out",
		"instance_id", instanceID,
		"node_id", nodeID,
		"timeout", timeout)

	if err := e.failInstance(ctx, def, instance, nodeID, timeoutErr); err != nil {
		e.logger.Error("failed to finalize timed out instance", "instance_id", instanceID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.Warn("failed to publish orchestrator event", "error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, instance *models.WorkflowInstance) events.BaseEvent {
	return events.BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		DefinitionID: instance.DefinitionID,
		InstanceID:   instance.ID,
	}
}
