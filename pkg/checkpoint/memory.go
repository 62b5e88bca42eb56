package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/stratumflow/stratum/pkg/models"
)

// MemoryTier keeps the highest-sequence checkpoint per instance in process
// memory. It is the fastest tier and the only one used in unit tests.
type MemoryTier struct {
	mu          sync.RWMutex
	checkpoints map[string]*models.Checkpoint
}

// NewMemoryTier creates an empty in-process tier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{checkpoints: make(map[string]*models.Checkpoint)}
}

func (t *MemoryTier) Name() string { return "memory" }

func (t *MemoryTier) Save(_ context.Context, cp *models.Checkpoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.checkpoints[cp.InstanceID]
	if ok && existing.Sequence >= cp.Sequence {
		return nil
	}

	t.checkpoints[cp.InstanceID] = cp

	return nil
}

func (t *MemoryTier) Latest(_ context.Context, instanceID string) (*models.Checkpoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cp, ok := t.checkpoints[instanceID]
	if !ok {
		return nil, fmt.Errorf("memory tier instance %s: %w", instanceID, ErrRestoreMiss)
	}

	return cp, nil
}

func (t *MemoryTier) Delete(_ context.Context, instanceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.checkpoints, instanceID)

	return nil
}
