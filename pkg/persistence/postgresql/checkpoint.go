package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// CheckpointRepository is the durable checkpoint tier backed by PostgreSQL.
// One row per instance: a save only lands when its sequence is strictly
// higher than the stored one, so stale writers lose silently.
type CheckpointRepository struct {
	db *sql.DB
}

func (r *CheckpointRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	contextData, err := json.Marshal(cp.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	completedNodes, err := json.Marshal(cp.CompletedNodes)
	if err != nil {
		return fmt.Errorf("failed to marshal completed nodes: %w", err)
	}

	variables, err := marshalMap(cp.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	triggerData, err := marshalMap(cp.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO checkpoints (
			instance_id, checkpoint_id, node_id, sequence, context,
			completed_nodes, variables, trigger_data, progress,
			created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (instance_id) DO UPDATE SET
			checkpoint_id = EXCLUDED.checkpoint_id,
			node_id = EXCLUDED.node_id,
			sequence = EXCLUDED.sequence,
			context = EXCLUDED.context,
			completed_nodes = EXCLUDED.completed_nodes,
			variables = EXCLUDED.variables,
			trigger_data = EXCLUDED.trigger_data,
			progress = EXCLUDED.progress,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE checkpoints.sequence < EXCLUDED.sequence
	`

	_, err = r.db.ExecContext(ctx, query,
		cp.InstanceID, cp.ID, cp.NodeID, int64(cp.Sequence), contextData,
		completedNodes, variables, triggerData, cp.Progress,
		cp.CreatedAt, cp.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

func (r *CheckpointRepository) Latest(ctx context.Context, instanceID string) (*models.Checkpoint, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			instance_id, checkpoint_id, node_id, sequence, context,
			completed_nodes, variables, trigger_data, progress,
			created_at, expires_at
		FROM checkpoints
		WHERE instance_id = $1
	`, instanceID)

	var (
		cp             models.Checkpoint
		sequence       int64
		contextData    []byte
		completedNodes []byte
		variables      []byte
		triggerData    []byte
	)

	err := row.Scan(
		&cp.InstanceID, &cp.ID, &cp.NodeID, &sequence, &contextData,
		&completedNodes, &variables, &triggerData, &cp.Progress,
		&cp.CreatedAt, &cp.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("latest", "checkpoint", instanceID, persistence.ErrCheckpointNotFound)
		}

		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}

	cp.Sequence = uint64(sequence)

	if err := json.Unmarshal(contextData, &cp.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	if err := json.Unmarshal(completedNodes, &cp.CompletedNodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed nodes: %w", err)
	}

	if err := unmarshalMap(variables, &cp.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := unmarshalMap(triggerData, &cp.TriggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if cp.Expired(time.Now().UTC()) {
		return nil, persistence.NewStoreError("latest", "checkpoint", instanceID, persistence.ErrCheckpointNotFound)
	}

	return &cp, nil
}

func (r *CheckpointRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE expires_at IS NOT NULL AND expires_at < $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired checkpoints: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(affected), nil
}

func (r *CheckpointRepository) DeleteForInstance(ctx context.Context, instanceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}

	return nil
}
