package checkpoint

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence/file"
)

func newTestStore(t *testing.T, tiers ...Tier) *Store {
	t.Helper()

	store, err := NewStore(slog.Default(), DefaultConfig(), tiers...)
	require.NoError(t, err)

	return store
}

func testInstance(id string) *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID:           id,
		DefinitionID: "wf-orders",
		Status:       models.InstanceStatusRunning,
		Context: map[string]*models.NodeOutput{
			"fetch": {
				NodeID: "fetch",
				Data:   map[string]any{"rows": float64(3)},
				Status: models.NodeStatusSuccess,
			},
		},
		CompletedNodes: []string{"fetch"},
		Variables:      map[string]any{"region": "eu"},
	}
}

func TestStoreCaptureAndRestore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryTier())

	instance := testInstance("inst-1")

	cp, err := store.Capture(ctx, instance, "fetch", 0.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cp.Sequence)
	assert.Equal(t, "fetch", cp.NodeID)

	restored, err := store.Restore(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, cp.ID, restored.ID)
	assert.Equal(t, []string{"fetch"}, restored.CompletedNodes)
	assert.Equal(t, "eu", restored.Variables["region"])
}

func TestStoreSequenceStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryTier())

	instance := testInstance("inst-2")

	first, err := store.Capture(ctx, instance, "fetch", 0.3)
	require.NoError(t, err)

	second, err := store.Capture(ctx, instance, "transform", 0.6)
	require.NoError(t, err)

	assert.Greater(t, second.Sequence, first.Sequence)

	restored, err := store.Restore(ctx, "inst-2")
	require.NoError(t, err)
	assert.Equal(t, second.Sequence, restored.Sequence)
	assert.Equal(t, "transform", restored.NodeID)
}

func TestStoreRestoreMiss(t *testing.T) {
	store := newTestStore(t, NewMemoryTier())

	_, err := store.Restore(context.Background(), "no-such-instance")
	require.ErrorIs(t, err, ErrRestoreMiss)
}

func TestStoreFallsBackToDurableTier(t *testing.T) {
	ctx := context.Background()
	durable := NewDurableTier(file.NewPersistence(t.TempDir()).Checkpoints())

	writer := newTestStore(t, durable)
	_, err := writer.Capture(ctx, testInstance("inst-3"), "fetch", 0.5)
	require.NoError(t, err)

	// A fresh store with an empty memory tier simulates a process restart.
	memory := NewMemoryTier()
	reader := newTestStore(t, memory, durable)

	restored, err := reader.Restore(ctx, "inst-3")
	require.NoError(t, err)
	assert.Equal(t, "fetch", restored.NodeID)

	// The durable hit backfills the memory tier.
	repaired, err := memory.Latest(ctx, "inst-3")
	require.NoError(t, err)
	assert.Equal(t, restored.ID, repaired.ID)
}

func TestStoreReseedsSequenceAfterRestore(t *testing.T) {
	ctx := context.Background()
	durable := NewDurableTier(file.NewPersistence(t.TempDir()).Checkpoints())

	writer := newTestStore(t, durable)
	instance := testInstance("inst-4")

	_, err := writer.Capture(ctx, instance, "fetch", 0.3)
	require.NoError(t, err)

	before, err := writer.Capture(ctx, instance, "transform", 0.6)
	require.NoError(t, err)

	reader := newTestStore(t, NewMemoryTier(), durable)

	restored, err := reader.Restore(ctx, "inst-4")
	require.NoError(t, err)
	require.Equal(t, before.Sequence, restored.Sequence)

	after, err := reader.Capture(ctx, instance, "deliver", 0.9)
	require.NoError(t, err)
	assert.Greater(t, after.Sequence, before.Sequence)
}

func TestStoreDiscardRemovesAllTiers(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryTier()
	durable := NewDurableTier(file.NewPersistence(t.TempDir()).Checkpoints())
	store := newTestStore(t, memory, durable)

	_, err := store.Capture(ctx, testInstance("inst-5"), "fetch", 1.0)
	require.NoError(t, err)

	require.NoError(t, store.Discard(ctx, "inst-5"))

	_, err = store.Restore(ctx, "inst-5")
	require.ErrorIs(t, err, ErrRestoreMiss)
}

func TestMemoryTierIgnoresStaleSequence(t *testing.T) {
	ctx := context.Background()
	tier := NewMemoryTier()

	newer := &models.Checkpoint{ID: "b", InstanceID: "i", Sequence: 2}
	stale := &models.Checkpoint{ID: "a", InstanceID: "i", Sequence: 1}

	require.NoError(t, tier.Save(ctx, newer))
	require.NoError(t, tier.Save(ctx, stale))

	got, err := tier.Latest(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
}

func TestStoreRestorePrefersNewestAcrossTiers(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryTier()
	durable := NewDurableTier(file.NewPersistence(t.TempDir()).Checkpoints())
	store := newTestStore(t, memory, durable)

	// The fast tier lags behind: a previous save skipped it.
	stale := &models.Checkpoint{ID: "a", InstanceID: "i", NodeID: "fetch", Sequence: 1}
	newer := &models.Checkpoint{ID: "b", InstanceID: "i", NodeID: "transform", Sequence: 2}

	require.NoError(t, memory.Save(ctx, stale))
	require.NoError(t, durable.Save(ctx, newer))

	restored, err := store.Restore(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), restored.Sequence)
	assert.Equal(t, "transform", restored.NodeID)

	repaired, err := memory.Latest(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, "b", repaired.ID)
}

type faultyTier struct {
	*MemoryTier
	failSaves bool
}

func (f *faultyTier) Save(ctx context.Context, cp *models.Checkpoint) error {
	if f.failSaves {
		return errors.New("tier unavailable")
	}

	return f.MemoryTier.Save(ctx, cp)
}

func TestStoreSaveDropsStaleEntryFromFailedTier(t *testing.T) {
	ctx := context.Background()
	fast := &faultyTier{MemoryTier: NewMemoryTier()}
	durable := NewDurableTier(file.NewPersistence(t.TempDir()).Checkpoints())
	store := newTestStore(t, fast, durable)

	instance := testInstance("inst-6")

	_, err := store.Capture(ctx, instance, "fetch", 0.3)
	require.NoError(t, err)

	// The fast tier goes down; the save continues to the durable tier and the
	// fast tier must not keep its older entry around.
	fast.failSaves = true

	second, err := store.Capture(ctx, instance, "transform", 0.6)
	require.NoError(t, err)

	_, err = fast.Latest(ctx, "inst-6")
	require.Error(t, err)

	restored, err := store.Restore(ctx, "inst-6")
	require.NoError(t, err)
	assert.Equal(t, second.Sequence, restored.Sequence)
	assert.Equal(t, "transform", restored.NodeID)
}

func TestStoreSkipsExpiredCheckpoint(t *testing.T) {
	ctx := context.Background()
	tier := NewMemoryTier()
	store := newTestStore(t, tier)

	past := time.Now().UTC().Add(-time.Minute)
	expired := &models.Checkpoint{ID: "x", InstanceID: "i", Sequence: 1, ExpiresAt: &past}
	require.NoError(t, tier.Save(ctx, expired))

	_, err := store.Restore(ctx, "i")
	require.ErrorIs(t, err, ErrRestoreMiss)
}
