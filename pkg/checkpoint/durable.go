package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// DurableTier adapts the persistence checkpoint repository to the tier
// contract. It is the slowest tier and the source of truth after a full
// process and cache loss.
type DurableTier struct {
	repo persistence.CheckpointRepository
}

// NewDurableTier wraps a persistence checkpoint repository.
func NewDurableTier(repo persistence.CheckpointRepository) *DurableTier {
	return &DurableTier{repo: repo}
}

func (t *DurableTier) Name() string { return "durable" }

func (t *DurableTier) Save(ctx context.Context, cp *models.Checkpoint) error {
	return t.repo.Save(ctx, cp)
}

func (t *DurableTier) Latest(ctx context.Context, instanceID string) (*models.Checkpoint, error) {
	cp, err := t.repo.Latest(ctx, instanceID)
	if err != nil {
		if errors.Is(err, persistence.ErrCheckpointNotFound) {
			return nil, fmt.Errorf("durable tier instance %s: %w", instanceID, ErrRestoreMiss)
		}

		return nil, err
	}

	return cp, nil
}

func (t *DurableTier) Delete(ctx context.Context, instanceID string) error {
	return t.repo.DeleteForInstance(ctx, instanceID)
}

// Sweep deletes expired checkpoints from the durable tier and returns how
// many were removed. Fast tiers expire on their own.
func (t *DurableTier) Sweep(ctx context.Context, now time.Time) (int, error) {
	return t.repo.DeleteExpired(ctx, now)
}
