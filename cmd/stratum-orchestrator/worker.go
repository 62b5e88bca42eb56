// Package main provides the Stratum background orchestration worker: crash
// recovery, automatic canary rollback evaluation, rollback fallout handling
// and checkpoint retention.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stratumflow/stratum/pkg/canary"
	"github.com/stratumflow/stratum/pkg/eventbus"
	"github.com/stratumflow/stratum/pkg/events"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/orchestrator"
	"github.com/stratumflow/stratum/pkg/persistence"
)

const checkpointSweepInterval = 15 * time.Minute

type Worker struct {
	logger      *slog.Logger
	engine      *orchestrator.Engine
	evaluator   *canary.RollbackEvaluator
	resolver    *canary.Resolver
	checkpoints persistence.CheckpointRepository
	assignments persistence.AssignmentRepository
	bus         eventbus.EventBus
}

func NewWorker(
	logger *slog.Logger,
	engine *orchestrator.Engine,
	evaluator *canary.RollbackEvaluator,
	resolver *canary.Resolver,
	checkpoints persistence.CheckpointRepository,
	assignments persistence.AssignmentRepository,
	bus eventbus.EventBus,
) *Worker {
	return &Worker{
		logger:      logger,
		engine:      engine,
		evaluator:   evaluator,
		resolver:    resolver,
		checkpoints: checkpoints,
		assignments: assignments,
		bus:         bus,
	}
}

// Run recovers interrupted instances, then drives the rollback evaluator,
// the rollback fallout handler and the checkpoint retention sweep until the
// context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.recoverInstances(ctx)

	if err := w.bus.Handle(events.DeploymentRolledBackEvent, w.onDeploymentRolledBack); err != nil {
		return err
	}

	if err := w.bus.Subscribe(ctx); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return w.evaluator.Run(ctx)
	})

	group.Go(func() error {
		return w.sweepCheckpoints(ctx)
	})

	return group.Wait()
}

// recoverInstances resumes every instance left in the running state by a
// previous process. The checkpoint store replays completed work, so a resume
// restarts at most one node.
func (w *Worker) recoverInstances(ctx context.Context) {
	running, err := w.engine.ListInstancesByStatus(ctx, models.InstanceStatusRunning)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to list interrupted instances", "error", err)

		return
	}

	for _, instance := range running {
		w.logger.InfoContext(ctx, "Recovering interrupted instance", "instance_id", instance.ID)

		if _, err := w.engine.Resume(ctx, instance.ID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to recover instance",
				"instance_id", instance.ID, "error", err)
		}
	}
}

// onDeploymentRolledBack aborts in-flight instances that were stickily
// assigned to the rolled-back version, unwinding their completed work through
// compensation, then purges the deployment's assignments and their caches.
func (w *Worker) onDeploymentRolledBack(ctx context.Context, event any) error {
	rolledBack, ok := event.(*events.DeploymentRolledBack)
	if !ok {
		return nil
	}

	assigned, err := w.assignments.ListByVersion(ctx, rolledBack.DeploymentID, rolledBack.NewVersion)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to list assignments for rolled back version",
			"deployment_id", rolledBack.DeploymentID, "error", err)

		return nil
	}

	cause := fmt.Errorf("deployment '%s' rolled back to version '%s'",
		rolledBack.DeploymentID, rolledBack.OldVersion)

	for _, assignment := range assigned {
		if assignment.UnitKind != models.UnitInstance {
			continue
		}

		instance, err := w.engine.GetInstance(ctx, assignment.UnitKey)
		if err != nil || instance.Status.Terminal() {
			continue
		}

		w.logger.InfoContext(ctx, "Aborting instance on rolled back version",
			"instance_id", instance.ID, "deployment_id", rolledBack.DeploymentID)

		if _, err := w.engine.Abort(ctx, instance.ID, cause); err != nil {
			w.logger.ErrorContext(ctx, "Failed to abort instance",
				"instance_id", instance.ID, "error", err)
		}
	}

	purged, err := w.resolver.PurgeDeployment(ctx, rolledBack.DeploymentID,
		rolledBack.OldVersion, rolledBack.NewVersion)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to purge assignments for rolled back deployment",
			"deployment_id", rolledBack.DeploymentID, "error", err)

		return nil
	}

	if purged > 0 {
		w.logger.InfoContext(ctx, "Purged assignments for rolled back deployment",
			"deployment_id", rolledBack.DeploymentID, "count", purged)
	}

	return nil
}

func (w *Worker) sweepCheckpoints(ctx context.Context) error {
	ticker := time.NewTicker(checkpointSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deleted, err := w.checkpoints.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				w.logger.ErrorContext(ctx, "Checkpoint sweep failed", "error", err)

				continue
			}

			if deleted > 0 {
				w.logger.InfoContext(ctx, "Expired checkpoints removed", "count", deleted)
			}
		}
	}
}
