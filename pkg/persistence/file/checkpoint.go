package file

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

func unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// CheckpointRepository is the durable checkpoint tier. Only the
// highest-sequence checkpoint per instance is retained; Save is a no-op for
// stale sequences.
type CheckpointRepository struct {
	p *Persistence
}

func (r *CheckpointRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing := &models.Checkpoint{}
	if err := r.p.readDoc("checkpoints", cp.InstanceID, existing); err == nil {
		if existing.Sequence >= cp.Sequence {
			return nil
		}
	}

	return r.p.writeDoc("checkpoints", cp.InstanceID, cp)
}

func (r *CheckpointRepository) Latest(ctx context.Context, instanceID string) (*models.Checkpoint, error) {
	cp := &models.Checkpoint{}

	err := r.p.readDoc("checkpoints", instanceID, cp)
	if err != nil {
		return nil, persistence.NewStoreError("Latest", "checkpoint", instanceID, persistence.ErrCheckpointNotFound)
	}

	if cp.Expired(time.Now().UTC()) {
		return nil, persistence.NewStoreError("Latest", "checkpoint", instanceID, persistence.ErrCheckpointNotFound)
	}

	return cp, nil
}

func (r *CheckpointRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var expired []string

	err := r.p.listDocs("checkpoints", func(data []byte) error {
		cp := &models.Checkpoint{}
		if err := unmarshal(data, cp); err != nil {
			return err
		}

		if cp.Expired(now) {
			expired = append(expired, cp.InstanceID)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range expired {
		if err := r.p.deleteDoc("checkpoints", id); err != nil {
			return 0, err
		}
	}

	return len(expired), nil
}

func (r *CheckpointRepository) DeleteForInstance(ctx context.Context, instanceID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.deleteDoc("checkpoints", instanceID)
}
