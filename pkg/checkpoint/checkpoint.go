// Package checkpoint implements the tiered checkpoint store: an in-process
// tier for cheap intra-run restores, a Redis tier shared across orchestrator
// processes, and a durable tier backed by the persistence layer.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratumflow/stratum/pkg/models"
)

// ErrRestoreMiss indicates no tier holds a checkpoint for the instance.
// Callers fall back to restarting the instance from its entry nodes.
var ErrRestoreMiss = errors.New("no checkpoint available")

// Tier is one storage level of the checkpoint store. Save must keep only the
// highest-sequence checkpoint per instance and ignore stale writes.
type Tier interface {
	Name() string
	Save(ctx context.Context, cp *models.Checkpoint) error
	Latest(ctx context.Context, instanceID string) (*models.Checkpoint, error)
	Delete(ctx context.Context, instanceID string) error
}

// Config tunes checkpoint retention per tier.
type Config struct {
	// FastTTL bounds how long the Redis tier keeps a checkpoint.
	FastTTL time.Duration
	// Retention bounds how long the durable tier keeps a checkpoint.
	Retention time.Duration
}

// DefaultConfig returns the retention defaults: one hour in Redis, seven
// days durable.
func DefaultConfig() Config {
	return Config{
		FastTTL:   time.Hour,
		Retention: 7 * 24 * time.Hour,
	}
}

// Store is the tiered checkpoint store. Saves write through every tier from
// fastest to slowest; restores consult every tier and read-repair the
// faster tiers on a deeper hit.
type Store struct {
	tiers  []Tier
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	sequences map[string]uint64
}

// NewStore builds a store over the given tiers, ordered fastest first. At
// least one tier is required.
func NewStore(logger *slog.Logger, config Config, tiers ...Tier) (*Store, error) {
	if len(tiers) == 0 {
		return nil, errors.New("checkpoint store requires at least one tier")
	}

	return &Store{
		tiers:     tiers,
		config:    config,
		logger:    logger,
		sequences: make(map[string]uint64),
	}, nil
}

// Capture snapshots an instance after a node completion and writes it through
// every tier. The sequence number is strictly increasing per instance for the
// lifetime of this store; Resume reseeds it after a process restart.
func (s *Store) Capture(ctx context.Context, instance *models.WorkflowInstance, nodeID string, progress float64) (*models.Checkpoint, error) {
	now := time.Now().UTC()
	expires := now.Add(s.config.Retention)

	cp := &models.Checkpoint{
		ID:             uuid.New().String(),
		InstanceID:     instance.ID,
		NodeID:         nodeID,
		Sequence:       s.nextSequence(instance.ID),
		Context:        instance.Context,
		CompletedNodes: instance.CompletedNodes,
		Variables:      instance.Variables,
		TriggerData:    instance.TriggerData,
		Progress:       progress,
		CreatedAt:      now,
		ExpiresAt:      &expires,
	}

	if err := s.Save(ctx, cp); err != nil {
		return nil, err
	}

	return cp, nil
}

// Save writes a checkpoint through every tier. A failed fast tier is logged
// and skipped; a failed final (durable) tier fails the save.
func (s *Store) Save(ctx context.Context, cp *models.Checkpoint) error {
	for i, tier := range s.tiers {
		err := tier.Save(ctx, cp)
		if err == nil {
			continue
		}

		if i == len(s.tiers)-1 {
			return fmt.Errorf("failed to save checkpoint to %s tier: %w", tier.Name(), err)
		}

		s.logger.WarnContext(ctx, "Checkpoint tier save failed, continuing",
			"tier", tier.Name(), "instance_id", cp.InstanceID, "error", err)

		// The tier may still hold an older checkpoint that would shadow this
		// one on restore. Drop it so the tier holds nothing rather than a
		// stale entry.
		if delErr := tier.Delete(ctx, cp.InstanceID); delErr != nil {
			s.logger.WarnContext(ctx, "Could not drop stale checkpoint from failed tier",
				"tier", tier.Name(), "instance_id", cp.InstanceID, "error", delErr)
		}
	}

	return nil
}

// Restore returns the highest-sequence checkpoint held by any tier. Every
// tier is consulted: a fast tier can lag behind the durable one when an
// earlier save skipped it, so the first hit is not necessarily the newest. Tiers
// faster than the winning one are backfilled so the next restore is cheap.
// Returns ErrRestoreMiss when no tier has an unexpired checkpoint.
func (s *Store) Restore(ctx context.Context, instanceID string) (*models.Checkpoint, error) {
	now := time.Now().UTC()

	var (
		best     *models.Checkpoint
		bestTier int
	)

	for i, tier := range s.tiers {
		cp, err := tier.Latest(ctx, instanceID)
		if err != nil || cp.Expired(now) {
			continue
		}

		if best == nil || cp.Sequence > best.Sequence {
			best = cp
			bestTier = i
		}
	}

	if best == nil {
		return nil, fmt.Errorf("restore checkpoint for instance %s: %w", instanceID, ErrRestoreMiss)
	}

	for j := range bestTier {
		if repairErr := s.tiers[j].Save(ctx, best); repairErr != nil {
			s.logger.WarnContext(ctx, "Checkpoint read repair failed",
				"tier", s.tiers[j].Name(), "instance_id", instanceID, "error", repairErr)
		}
	}

	s.seedSequence(instanceID, best.Sequence)

	return best, nil
}

// Discard removes all checkpoints for a finished instance from every tier.
func (s *Store) Discard(ctx context.Context, instanceID string) error {
	var errs []error

	for _, tier := range s.tiers {
		if err := tier.Delete(ctx, instanceID); err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", tier.Name(), err))
		}
	}

	s.mu.Lock()
	delete(s.sequences, instanceID)
	s.mu.Unlock()

	return errors.Join(errs...)
}

func (s *Store) nextSequence(instanceID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequences[instanceID]++

	return s.sequences[instanceID]
}

// seedSequence raises the in-memory counter so post-restore captures keep
// the sequence strictly increasing across process restarts.
func (s *Store) seedSequence(instanceID string, seen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sequences[instanceID] < seen {
		s.sequences[instanceID] = seen
	}
}
