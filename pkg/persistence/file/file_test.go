package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
	"github.com/stratumflow/stratum/pkg/persistence/file"
)

func newStore(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func draftDefinition(id string, version int) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:      id,
		Version: version,
		Name:    "order flow",
		Status:  models.DefinitionStatusDraft,
		Nodes: []*models.DefinitionNode{
			{ID: "fetch", Type: models.NodeTypeData, Enabled: true},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestPublishedDefinitionVersionIsImmutable(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	def := draftDefinition("orders", 1)
	require.NoError(t, store.Definitions().Save(ctx, def))

	now := time.Now().UTC()
	def.Status = models.DefinitionStatusPublished
	def.PublishedAt = &now
	require.NoError(t, store.Definitions().Save(ctx, def))

	def.Description = "edited after publish"
	err := store.Definitions().Save(ctx, def)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrDefinitionImmutable)

	next := draftDefinition("orders", 2)
	require.NoError(t, store.Definitions().Save(ctx, next))

	stored, err := store.Definitions().GetByID(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, models.DefinitionStatusDraft, stored.Status)
}

func TestGetMissingDefinition(t *testing.T) {
	store := newStore(t)

	_, err := store.Definitions().GetByID(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
	assert.True(t, persistence.IsNotFound(err))
}

func TestMatrixUpsertOverwritesCell(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	entry := &models.DecisionMatrixEntry{
		TrustLevel: models.TrustLevel(2),
		RiskLevel:  models.RiskMedium,
		Decision:   models.DecisionApproval,
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Decisions().UpsertMatrixEntry(ctx, entry))

	entry.Decision = models.DecisionAuto
	require.NoError(t, store.Decisions().UpsertMatrixEntry(ctx, entry))

	stored, err := store.Decisions().GetMatrixEntry(ctx, models.TrustLevel(2), models.RiskMedium)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAuto, stored.Decision)

	entries, err := store.Decisions().ListMatrix(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAssignmentUpsertKeepsFirstWrite(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := &models.CanaryAssignment{
		DeploymentID:    "dep-1",
		UnitKind:        models.UnitSession,
		UnitKey:         "sess-42",
		AssignedVersion: "v2",
		CreatedAt:       time.Now().UTC(),
	}

	stored, err := store.Assignments().Upsert(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.AssignedVersion)

	second := &models.CanaryAssignment{
		DeploymentID:    "dep-1",
		UnitKind:        models.UnitSession,
		UnitKey:         "sess-42",
		AssignedVersion: "v1",
	}

	stored, err = store.Assignments().Upsert(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.AssignedVersion, "sticky assignment must not move between versions")

	byVersion, err := store.Assignments().ListByVersion(ctx, "dep-1", "v2")
	require.NoError(t, err)
	assert.Len(t, byVersion, 1)
}

func TestCheckpointSaveIgnoresStaleSequence(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Checkpoints().Save(ctx, &models.Checkpoint{
		ID: "cp-2", InstanceID: "inst-1", Sequence: 2, NodeID: "charge",
	}))
	require.NoError(t, store.Checkpoints().Save(ctx, &models.Checkpoint{
		ID: "cp-1", InstanceID: "inst-1", Sequence: 1, NodeID: "fetch",
	}))

	latest, err := store.Checkpoints().Latest(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.Sequence)
	assert.Equal(t, "charge", latest.NodeID)
}

func TestExpiredCheckpointIsInvisibleAndSwept(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Checkpoints().Save(ctx, &models.Checkpoint{
		ID: "cp-1", InstanceID: "inst-old", Sequence: 1, ExpiresAt: &past,
	}))

	_, err := store.Checkpoints().Latest(ctx, "inst-old")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrCheckpointNotFound)

	deleted, err := store.Checkpoints().DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestMetricsWindowFiltersVersionAndTime(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	now := time.Now().UTC()

	samples := []*models.DeploymentMetricsSample{
		{DeploymentID: "dep-1", Version: "v2", WindowStart: now.Add(-30 * time.Minute), ErrorRate: 0.02},
		{DeploymentID: "dep-1", Version: "v2", WindowStart: now.Add(-2 * time.Hour), ErrorRate: 0.01},
		{DeploymentID: "dep-1", Version: "v1", WindowStart: now.Add(-10 * time.Minute), ErrorRate: 0.005},
	}
	for _, s := range samples {
		require.NoError(t, store.Metrics().Append(ctx, s))
	}

	window, err := store.Metrics().QueryWindow(ctx, "dep-1", "v2", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.InDelta(t, 0.02, window[0].ErrorRate, 1e-9)
}
