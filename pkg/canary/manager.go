// Package canary manages progressive rollouts: deployments move through a
// small state machine, traffic units are stickily assigned to a version, and
// an evaluator watches comparative metrics to roll bad versions back.
package canary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stratumflow/stratum/pkg/eventbus"
	"github.com/stratumflow/stratum/pkg/events"
	"github.com/stratumflow/stratum/pkg/metrics"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// ErrInvalidTransition is returned when a deployment is asked to move to a
// state its current state does not allow.
var ErrInvalidTransition = errors.New("invalid deployment state transition")

// Manager owns the deployment lifecycle.
type Manager struct {
	deployments persistence.DeploymentRepository
	assignments persistence.AssignmentRepository
	samples     persistence.MetricsRepository
	bus         eventbus.EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewManager(
	deployments persistence.DeploymentRepository,
	assignments persistence.AssignmentRepository,
	samples persistence.MetricsRepository,
	bus eventbus.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		deployments: deployments,
		assignments: assignments,
		samples:     samples,
		bus:         bus,
		metrics:     m,
		logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateDeployment registers a new rollout in draft state.
func (m *Manager) CreateDeployment(ctx context.Context, d *models.CanaryDeployment) (*models.CanaryDeployment, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	d.Status = models.DeploymentStatusDraft
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := m.validate.Struct(d); err != nil {
		return nil, fmt.Errorf("invalid deployment: %w", err)
	}

	if err := m.deployments.Save(ctx, d); err != nil {
		return nil, err
	}

	m.logger.Info("deployment created",
		"deployment_id", d.ID,
		"target_id", d.TargetID,
		"new_version", d.NewVersion,
		"traffic_fraction", d.TrafficFraction)

	return d, nil
}

// StartCanary moves a draft deployment into the canary phase, opening it to
// traffic assignment.
func (m *Manager) StartCanary(ctx context.Context, deploymentID string) (*models.CanaryDeployment, error) {
	return m.transition(ctx, deploymentID, models.DeploymentStatusDraft, func(d *models.CanaryDeployment) {
		d.Status = models.DeploymentStatusCanary
	})
}

// SetTraffic adjusts the traffic split of an in-flight canary. Existing
// assignments keep their version; only units not yet assigned see the new
// fraction.
func (m *Manager) SetTraffic(ctx context.Context, deploymentID string, fraction float64) (*models.CanaryDeployment, error) {
	if fraction < 0 || fraction > 1 {
		return nil, fmt.Errorf("traffic fraction %v out of range [0, 1]", fraction)
	}

	return m.transition(ctx, deploymentID, models.DeploymentStatusCanary, func(d *models.CanaryDeployment) {
		d.TrafficFraction = fraction
	})
}

// Promote makes the new version the only version. Terminal.
func (m *Manager) Promote(ctx context.Context, deploymentID string) (*models.CanaryDeployment, error) {
	d, err := m.transition(ctx, deploymentID, models.DeploymentStatusCanary, func(d *models.CanaryDeployment) {
		now := time.Now().UTC()
		d.Status = models.DeploymentStatusPromoted
		d.PromotedAt = &now
	})
	if err != nil {
		return nil, err
	}

	m.publish(ctx, d.ID, events.DeploymentPromoted{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.DeploymentPromotedEvent,
			Timestamp: time.Now().UTC(),
		},
		DeploymentID: d.ID,
		NewVersion:   d.NewVersion,
	})

	return d, nil
}

// Rollback reverts all traffic to the old version on operator request.
// Terminal.
func (m *Manager) Rollback(ctx context.Context, deploymentID, reason string) (*models.CanaryDeployment, error) {
	return m.rollback(ctx, deploymentID, reason, nil)
}

// GetDeployment returns one deployment.
func (m *Manager) GetDeployment(ctx context.Context, deploymentID string) (*models.CanaryDeployment, error) {
	return m.deployments.GetByID(ctx, deploymentID)
}

// ListByStatus returns deployments in the given state.
func (m *Manager) ListByStatus(ctx context.Context, status models.DeploymentStatus) ([]*models.CanaryDeployment, error) {
	return m.deployments.ListByStatus(ctx, status)
}

// RecordSample appends a comparative metrics sample for one version of a
// deployment.
func (m *Manager) RecordSample(ctx context.Context, s *models.DeploymentMetricsSample) error {
	return m.samples.Append(ctx, s)
}

// rollback is shared by the manual path and the automatic evaluator. A
// non-nil trigger marks the rollback as automatic and is carried on the
// emitted event.
func (m *Manager) rollback(ctx context.Context, deploymentID, reason string, trigger *models.RollbackTrigger) (*models.CanaryDeployment, error) {
	d, err := m.transition(ctx, deploymentID, models.DeploymentStatusCanary, func(d *models.CanaryDeployment) {
		now := time.Now().UTC()
		d.Status = models.DeploymentStatusRolledBack
		d.RollbackReason = reason
		d.RolledBackAt = &now
	})
	if err != nil {
		return nil, err
	}

	m.metrics.RollbackFired(trigger != nil)
	m.logger.Warn("deployment rolled back",
		"deployment_id", d.ID,
		"reason", reason,
		"automatic", trigger != nil)

	m.publish(ctx, d.ID, events.DeploymentRolledBack{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.DeploymentRolledBackEvent,
			Timestamp: time.Now().UTC(),
		},
		DeploymentID: d.ID,
		OldVersion:   d.OldVersion,
		NewVersion:   d.NewVersion,
		Automatic:    trigger != nil,
		Trigger:      trigger,
	})

	return d, nil
}

func (m *Manager) transition(
	ctx context.Context,
	deploymentID string,
	from models.DeploymentStatus,
	apply func(*models.CanaryDeployment),
) (*models.CanaryDeployment, error) {
	d, err := m.deployments.GetByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	if d.Status != from {
		return nil, fmt.Errorf("deployment '%s' is %s: %w", deploymentID, d.Status, ErrInvalidTransition)
	}

	apply(d)
	d.UpdatedAt = time.Now().UTC()

	if err := m.deployments.Save(ctx, d); err != nil {
		return nil, err
	}

	return d, nil
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.bus == nil {
		return
	}

	if err := m.bus.Publish(ctx, key, event); err != nil {
		m.logger.Warn("failed to publish deployment event", "error", err)
	}
}
