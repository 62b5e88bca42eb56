package canary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// Rollback thresholds. Any one of them firing reverts the deployment.
const (
	maxAbsoluteErrorRate  = 0.05
	maxErrorRateRatio     = 2.0
	maxLatencyP95Ratio    = 1.5
	maxConsecutiveFailing = 5
)

const (
	defaultEvaluationInterval = 30 * time.Second
	defaultMetricsWindow      = 10 * time.Minute
	leasePrefix               = "stratum:canary:lease:"
)

// RollbackEvaluator watches comparative metrics of in-flight canaries and
// rolls back on regression. Ticks for the same deployment are single-flight:
// a lease in Redis keeps overlapping evaluators (or a slow prior tick) from
// double-deciding.
type RollbackEvaluator struct {
	manager  *Manager
	metrics  persistence.MetricsRepository
	locker   redis.UniversalClient
	logger   *slog.Logger
	interval time.Duration
	window   time.Duration
}

func NewRollbackEvaluator(
	manager *Manager,
	metrics persistence.MetricsRepository,
	locker redis.UniversalClient,
	logger *slog.Logger,
) *RollbackEvaluator {
	return &RollbackEvaluator{
		manager:  manager,
		metrics:  metrics,
		locker:   locker,
		logger:   logger,
		interval: defaultEvaluationInterval,
		window:   defaultMetricsWindow,
	}
}

// Run evaluates on a fixed interval until the context is cancelled.
func (e *RollbackEvaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.EvaluateAll(ctx); err != nil {
				e.logger.Error("rollback evaluation cycle failed", "error", err)
			}
		}
	}
}

// EvaluateAll runs one evaluation cycle over every in-flight canary.
func (e *RollbackEvaluator) EvaluateAll(ctx context.Context) error {
	deployments, err := e.manager.ListByStatus(ctx, models.DeploymentStatusCanary)
	if err != nil {
		return fmt.Errorf("listing canary deployments: %w", err)
	}

	for _, d := range deployments {
		if !d.AutoRollback {
			continue
		}

		if !e.acquireLease(ctx, d.ID) {
			continue
		}

		trigger, err := e.Evaluate(ctx, d)
		if err != nil {
			e.logger.Error("evaluating deployment failed", "deployment_id", d.ID, "error", err)
			e.releaseLease(ctx, d.ID)

			continue
		}

		if trigger == nil {
			e.releaseLease(ctx, d.ID)

			continue
		}

		if _, err := e.manager.rollback(ctx, d.ID, trigger.Reason, trigger); err != nil {
			e.logger.Error("automatic rollback failed", "deployment_id", d.ID, "error", err)
		}

		e.releaseLease(ctx, d.ID)
	}

	return nil
}

// Evaluate inspects one deployment's recent samples and returns a trigger if
// any rollback condition holds, nil otherwise.
func (e *RollbackEvaluator) Evaluate(ctx context.Context, d *models.CanaryDeployment) (*models.RollbackTrigger, error) {
	since := time.Now().UTC().Add(-e.window)

	newSamples, err := e.metrics.QueryWindow(ctx, d.ID, d.NewVersion, since)
	if err != nil {
		return nil, fmt.Errorf("querying new version samples: %w", err)
	}

	if len(newSamples) == 0 {
		return nil, nil
	}

	oldSamples, err := e.metrics.QueryWindow(ctx, d.ID, d.OldVersion, since)
	if err != nil {
		return nil, fmt.Errorf("querying old version samples: %w", err)
	}

	newAgg := aggregate(newSamples)
	oldAgg := aggregate(oldSamples)
	consecutive := trailingFailures(newSamples)

	trigger := &models.RollbackTrigger{
		DeploymentID:     d.ID,
		NewErrorRate:     newAgg.errorRate,
		OldErrorRate:     oldAgg.errorRate,
		ConsecutiveFails: consecutive,
		EvaluatedAt:      time.Now().UTC(),
	}

	if oldAgg.errorRate > 0 {
		trigger.ErrorRateRatio = newAgg.errorRate / oldAgg.errorRate
	}
	if oldAgg.latencyP95 > 0 {
		trigger.LatencyP95Ratio = newAgg.latencyP95 / oldAgg.latencyP95
	}

	switch {
	case newAgg.errorRate > maxAbsoluteErrorRate:
		trigger.Condition = "absolute_error_rate"
		trigger.Reason = fmt.Sprintf("error rate %.2f%% exceeds %.0f%%",
			newAgg.errorRate*100, maxAbsoluteErrorRate*100)
	case oldAgg.errorRate > 0 && trigger.ErrorRateRatio > maxErrorRateRatio:
		trigger.Condition = "error_rate_ratio"
		trigger.Reason = fmt.Sprintf("error rate %.2fx the old version, above %.1fx",
			trigger.ErrorRateRatio, maxErrorRateRatio)
	case oldAgg.latencyP95 > 0 && trigger.LatencyP95Ratio > maxLatencyP95Ratio:
		trigger.Condition = "latency_p95_ratio"
		trigger.Reason = fmt.Sprintf("p95 latency %.2fx the old version, above %.1fx",
			trigger.LatencyP95Ratio, maxLatencyP95Ratio)
	case consecutive >= maxConsecutiveFailing:
		trigger.Condition = "consecutive_failures"
		trigger.Reason = fmt.Sprintf("%d consecutive failing samples", consecutive)
	default:
		return nil, nil
	}

	return trigger, nil
}

type aggregated struct {
	errorRate  float64
	latencyP95 float64
}

// aggregate combines samples weighted by sample count, so a thin sample
// cannot dominate a busy one.
func aggregate(samples []*models.DeploymentMetricsSample) aggregated {
	var errorSum, latencySum, count float64

	for _, s := range samples {
		weight := float64(s.SampleCount)
		errorSum += s.ErrorRate * weight
		latencySum += s.LatencyP95 * weight
		count += weight
	}

	if count == 0 {
		return aggregated{}
	}

	return aggregated{errorRate: errorSum / count, latencyP95: latencySum / count}
}

// trailingFailures counts fully failing samples at the end of the window.
func trailingFailures(samples []*models.DeploymentMetricsSample) int {
	count := 0

	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].ErrorRate < 1.0 {
			break
		}

		count++
	}

	return count
}

func (e *RollbackEvaluator) acquireLease(ctx context.Context, deploymentID string) bool {
	if e.locker == nil {
		return true
	}

	ok, err := e.locker.SetNX(ctx, leasePrefix+deploymentID, "1", e.interval*2).Result()
	if err != nil {
		e.logger.Warn("lease acquisition failed, skipping tick", "deployment_id", deploymentID, "error", err)

		return false
	}

	return ok
}

func (e *RollbackEvaluator) releaseLease(ctx context.Context, deploymentID string) {
	if e.locker == nil {
		return
	}

	if err := e.locker.Del(ctx, leasePrefix+deploymentID).Err(); err != nil {
		e.logger.Warn("lease release failed", "deployment_id", deploymentID, "error", err)
	}
}
