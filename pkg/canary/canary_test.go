package canary

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/metrics"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence/file"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewManager(p.Deployments(), p.Assignments(), p.Metrics(), nil, nil, slog.Default())
}

func draftDeployment(t *testing.T, m *Manager, fraction float64) *models.CanaryDeployment {
	t.Helper()

	d, err := m.CreateDeployment(context.Background(), &models.CanaryDeployment{
		TargetType:      "workflow",
		TargetID:        "order-flow",
		OldVersion:      "v1",
		NewVersion:      "v2",
		TrafficFraction: fraction,
	})
	require.NoError(t, err)

	return d
}

func TestManagerStateMachine(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	d := draftDeployment(t, m, 0.2)
	assert.Equal(t, models.DeploymentStatusDraft, d.Status)

	// Promote requires the canary phase.
	_, err := m.Promote(ctx, d.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	d, err = m.StartCanary(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusCanary, d.Status)

	d, err = m.Promote(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusPromoted, d.Status)
	require.NotNil(t, d.PromotedAt)

	// Terminal states admit nothing further.
	_, err = m.Rollback(ctx, d.ID, "too late")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManagerRollbackRecordsReason(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	d := draftDeployment(t, m, 0.2)
	_, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	d, err = m.Rollback(ctx, d.ID, "error budget burned")
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusRolledBack, d.Status)
	assert.Equal(t, "error budget burned", d.RollbackReason)
	require.NotNil(t, d.RolledBackAt)
}

func TestResolverAssignmentIsSticky(t *testing.T) {
	m := newTestManager(t)
	p := file.NewPersistence(t.TempDir())
	resolver := NewResolver(p.Assignments(), nil, slog.Default())
	ctx := context.Background()

	d := draftDeployment(t, m, 0.5)
	d, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	first, err := resolver.Resolve(ctx, d, ResolutionRequest{InstanceID: "inst-42"})
	require.NoError(t, err)

	// The same unit always gets the same version, even after the traffic
	// fraction changes.
	d.TrafficFraction = 0.0

	for range 5 {
		again, err := resolver.Resolve(ctx, d, ResolutionRequest{InstanceID: "inst-42"})
		require.NoError(t, err)
		assert.Equal(t, first.AssignedVersion, again.AssignedVersion)
	}
}

func TestResolverPrefersNarrowestUnit(t *testing.T) {
	m := newTestManager(t)
	p := file.NewPersistence(t.TempDir())
	resolver := NewResolver(p.Assignments(), nil, slog.Default())
	ctx := context.Background()

	d := draftDeployment(t, m, 0.5)
	d, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	assignment, err := resolver.Resolve(ctx, d, ResolutionRequest{
		InstanceID: "inst-1",
		SessionID:  "sess-1",
		UserID:     "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.UnitInstance, assignment.UnitKind)
	assert.Equal(t, "inst-1", assignment.UnitKey)

	_, err = resolver.Resolve(ctx, d, ResolutionRequest{})
	require.ErrorIs(t, err, ErrNoAssignableUnit)
}

func TestRollbackIncrementsCounter(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	reg := prometheus.NewRegistry()
	m := NewManager(p.Deployments(), p.Assignments(), p.Metrics(), nil, metrics.New(reg), slog.Default())
	ctx := context.Background()

	d := draftDeployment(t, m, 0.2)
	_, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	_, err = m.Rollback(ctx, d.ID, "error budget burned")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0

	for _, fam := range families {
		if fam.GetName() != "stratum_deployment_rollbacks_total" {
			continue
		}

		for _, sample := range fam.GetMetric() {
			total += sample.GetCounter().GetValue()
		}
	}

	assert.Equal(t, 1.0, total)
}

func TestPurgeDeploymentRemovesAssignments(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	m := NewManager(p.Deployments(), p.Assignments(), p.Metrics(), nil, nil, slog.Default())
	resolver := NewResolver(p.Assignments(), nil, slog.Default())
	ctx := context.Background()

	d := draftDeployment(t, m, 1.0)
	d, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	for _, id := range []string{"inst-1", "inst-2"} {
		_, err := resolver.Resolve(ctx, d, ResolutionRequest{InstanceID: id})
		require.NoError(t, err)
	}

	d, err = m.Rollback(ctx, d.ID, "error budget burned")
	require.NoError(t, err)

	purged, err := resolver.PurgeDeployment(ctx, d.ID, d.OldVersion, d.NewVersion)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	// With assignments gone, resolution follows the terminal state.
	assignment, err := resolver.Resolve(ctx, d, ResolutionRequest{InstanceID: "inst-1"})
	require.NoError(t, err)
	assert.Equal(t, d.OldVersion, assignment.AssignedVersion)

	remaining, err := p.Assignments().ListByVersion(ctx, d.ID, d.NewVersion)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestResolverFractionBoundaries(t *testing.T) {
	m := newTestManager(t)
	p := file.NewPersistence(t.TempDir())
	resolver := NewResolver(p.Assignments(), nil, slog.Default())
	ctx := context.Background()

	d := draftDeployment(t, m, 0)
	d, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	// Fraction 0: nobody gets the new version.
	for i := range 20 {
		a, err := resolver.Resolve(ctx, d, ResolutionRequest{UserID: userKey(i)})
		require.NoError(t, err)
		assert.Equal(t, "v1", a.AssignedVersion)
	}

	// Fraction 1: everybody does. Fresh deployment so no prior assignments.
	full := draftDeployment(t, m, 1)
	full, err = m.StartCanary(ctx, full.ID)
	require.NoError(t, err)

	for i := range 20 {
		a, err := resolver.Resolve(ctx, full, ResolutionRequest{UserID: userKey(i)})
		require.NoError(t, err)
		assert.Equal(t, "v2", a.AssignedVersion)
	}
}

func userKey(i int) string {
	return "user-" + string(rune('a'+i))
}

func TestEvaluatorFiresOnAbsoluteErrorRate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	d := draftDeployment(t, m, 0.2)
	d, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, m.RecordSample(ctx, &models.DeploymentMetricsSample{
		DeploymentID: d.ID, Version: "v2", ErrorRate: 0.08, LatencyP95: 120, SampleCount: 100, WindowStart: now,
	}))
	require.NoError(t, m.RecordSample(ctx, &models.DeploymentMetricsSample{
		DeploymentID: d.ID, Version: "v1", ErrorRate: 0.01, LatencyP95: 110, SampleCount: 100, WindowStart: now,
	}))

	evaluator := NewRollbackEvaluator(m, m.samples, nil, slog.Default())

	trigger, err := evaluator.Evaluate(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, trigger)
	assert.Equal(t, "absolute_error_rate", trigger.Condition)
	assert.InDelta(t, 0.08, trigger.NewErrorRate, 0.001)

	require.NoError(t, evaluator.EvaluateAll(ctx))

	rolled, err := m.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusRolledBack, rolled.Status)
}

func TestEvaluatorToleratesModerateLatencyIncrease(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	d := draftDeployment(t, m, 0.2)
	d, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, m.RecordSample(ctx, &models.DeploymentMetricsSample{
		DeploymentID: d.ID, Version: "v2", ErrorRate: 0.01, LatencyP95: 120, SampleCount: 100, WindowStart: now,
	}))
	require.NoError(t, m.RecordSample(ctx, &models.DeploymentMetricsSample{
		DeploymentID: d.ID, Version: "v1", ErrorRate: 0.01, LatencyP95: 100, SampleCount: 100, WindowStart: now,
	}))

	evaluator := NewRollbackEvaluator(m, m.samples, nil, slog.Default())

	trigger, err := evaluator.Evaluate(ctx, d)
	require.NoError(t, err)
	assert.Nil(t, trigger)
}

func TestEvaluatorFiresOnConsecutiveFailures(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	d := draftDeployment(t, m, 0.2)
	d, err := m.StartCanary(ctx, d.ID)
	require.NoError(t, err)

	// A large healthy sample keeps the aggregate rate under the absolute
	// threshold; the trailing run of fully failing samples fires instead.
	now := time.Now().UTC()
	require.NoError(t, m.RecordSample(ctx, &models.DeploymentMetricsSample{
		DeploymentID: d.ID, Version: "v2", ErrorRate: 0, LatencyP95: 100, SampleCount: 10000, WindowStart: now,
	}))

	for i := range 5 {
		require.NoError(t, m.RecordSample(ctx, &models.DeploymentMetricsSample{
			DeploymentID: d.ID,
			Version:      "v2",
			ErrorRate:    1.0,
			LatencyP95:   100,
			SampleCount:  1,
			WindowStart:  now.Add(time.Duration(i+1) * time.Second),
		}))
	}

	evaluator := NewRollbackEvaluator(m, m.samples, nil, slog.Default())

	trigger, err := evaluator.Evaluate(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, trigger)
	assert.Equal(t, "consecutive_failures", trigger.Condition)
	assert.Equal(t, 5, trigger.ConsecutiveFails)
}
