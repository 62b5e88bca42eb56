package trust

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence/file"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	return NewManager(file.NewPersistence(t.TempDir()).Trust(), nil, slog.Default())
}

func healthyObservation() Observation {
	return Observation{
		SuccessRate:      0.99,
		Feedback:         0.9,
		AgeDays:          180,
		ExecutionsPerDay: 50,
	}
}

func TestCurrentLevelDefaultsToProposed(t *testing.T) {
	m := newTestManager(t)

	level, err := m.CurrentLevel(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrustProposed, level)
}

func TestEvaluateMovesOneLevelPerCycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// The raw score justifies full auto, but promotion is stepwise.
	for i, want := range []models.TrustLevel{
		models.TrustAlertOnly,
		models.TrustLowRiskAuto,
		models.TrustFullAuto,
		models.TrustFullAuto,
	} {
		score, err := m.Evaluate(ctx, "flow-1", healthyObservation())
		require.NoError(t, err)
		assert.Equal(t, want, score.Level, "cycle %d", i)
	}

	changes, err := m.History(ctx, "flow-1", 10)
	require.NoError(t, err)
	assert.Len(t, changes, 3)
}

func TestEvaluateCriticalFailureCapsLevel(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	obs := healthyObservation()
	for range 3 {
		_, err := m.Evaluate(ctx, "flow-1", obs)
		require.NoError(t, err)
	}

	// One critical failure: level may not exceed 2.
	obs.RecentCriticalFailures = 1
	score, err := m.Evaluate(ctx, "flow-1", obs)
	require.NoError(t, err)
	assert.Equal(t, models.TrustLowRiskAuto, score.Level)

	// More than one: capped at 1, reached stepwise.
	obs.RecentCriticalFailures = 2
	score, err = m.Evaluate(ctx, "flow-1", obs)
	require.NoError(t, err)
	assert.Equal(t, models.TrustAlertOnly, score.Level)
}

func TestEvaluateDemotesOnLowScore(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Evaluate(ctx, "flow-1", healthyObservation())
	require.NoError(t, err)

	score, err := m.Evaluate(ctx, "flow-1", Observation{SuccessRate: 0.1})
	require.NoError(t, err)
	assert.Equal(t, models.TrustProposed, score.Level)
}

func TestScoreComponentsNormalized(t *testing.T) {
	m := newTestManager(t)

	score, err := m.Evaluate(context.Background(), "flow-1", Observation{
		SuccessRate:      1.0,
		Feedback:         1.0,
		AgeDays:          45, // half the saturation point
		ExecutionsPerDay: 1000,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, score.Components.Age, 0.001)
	assert.Equal(t, 1.0, score.Components.Frequency)
	assert.InDelta(t, 0.45+0.25+0.15*0.5+0.15, score.Score, 0.001)
}
