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

// DefinitionRepository stores workflow definitions in PostgreSQL.
type DefinitionRepository struct {
	db *sql.DB
}

// Save inserts or updates a definition. Published versions are immutable:
// an update against a row already published at the same version fails with
// persistence.ErrDefinitionImmutable.
func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	var (
		currentStatus  string
		currentVersion int
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT status, version FROM workflow_definitions WHERE id = $1`,
		def.ID,
	).Scan(&currentStatus, &currentVersion)

	switch {
	case err == nil:
		if currentStatus == string(models.DefinitionStatusPublished) && currentVersion == def.Version {
			return persistence.NewStoreError("save", "definition", def.ID, persistence.ErrDefinitionImmutable)
		}
	case errors.Is(err, sql.ErrNoRows):
		// first write
	default:
		return fmt.Errorf("failed to query definition status: %w", err)
	}

	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edges, err := json.Marshal(def.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	triggerConf, err := marshalMap(def.TriggerConf)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger conf: %w", err)
	}

	variables, err := marshalMap(def.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_definitions (
			id, version, name, description, status, nodes, edges,
			trigger_conf, variables, owner, created_at, published_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			trigger_conf = EXCLUDED.trigger_conf,
			variables = EXCLUDED.variables,
			owner = EXCLUDED.owner,
			published_at = EXCLUDED.published_at
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID, def.Version, def.Name, def.Description, string(def.Status),
		nodes, edges, triggerConf, variables, def.Owner, def.CreatedAt, def.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save definition: %w", err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id, version, name, description, status, nodes, edges,
			trigger_conf, variables, owner, created_at, published_at
		FROM workflow_definitions
		WHERE id = $1
	`, id)

	def, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("get", "definition", id, persistence.ErrDefinitionNotFound)
		}

		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}

	return def, nil
}

func (r *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, version, name, description, status, nodes, edges,
			trigger_conf, variables, owner, created_at, published_at
		FROM workflow_definitions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return defs, nil
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("delete", "definition", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

func scanDefinition(row scanner) (*models.WorkflowDefinition, error) {
	var (
		def         models.WorkflowDefinition
		status      string
		nodes       []byte
		edges       []byte
		triggerConf []byte
		variables   []byte
	)

	err := row.Scan(
		&def.ID, &def.Version, &def.Name, &def.Description, &status,
		&nodes, &edges, &triggerConf, &variables,
		&def.Owner, &def.CreatedAt, &def.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	def.Status = models.DefinitionStatus(status)

	if err := json.Unmarshal(nodes, &def.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edges, &def.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if err := unmarshalMap(triggerConf, &def.TriggerConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger conf: %w", err)
	}

	if err := unmarshalMap(variables, &def.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	return &def, nil
}

// InstanceRepository stores workflow instances in PostgreSQL.
type InstanceRepository struct {
	db *sql.DB
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	triggerData, err := marshalMap(instance.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	variables, err := marshalMap(instance.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	contextData, err := json.Marshal(instance.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	completedNodes, err := json.Marshal(instance.CompletedNodes)
	if err != nil {
		return fmt.Errorf("failed to marshal completed nodes: %w", err)
	}

	var compensation []byte
	if instance.Compensation != nil {
		compensation, err = json.Marshal(instance.Compensation)
		if err != nil {
			return fmt.Errorf("failed to marshal compensation: %w", err)
		}
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	query := `
		INSERT INTO workflow_instances (
			id, definition_id, definition_version, status, trigger_data,
			variables, context, completed_nodes, suspended_node_id,
			suspend_reason, failed_node_id, error_message, compensation,
			cancel_requested, session_id, user_id, created_at, updated_at,
			completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			trigger_data = EXCLUDED.trigger_data,
			variables = EXCLUDED.variables,
			context = EXCLUDED.context,
			completed_nodes = EXCLUDED.completed_nodes,
			suspended_node_id = EXCLUDED.suspended_node_id,
			suspend_reason = EXCLUDED.suspend_reason,
			failed_node_id = EXCLUDED.failed_node_id,
			error_message = EXCLUDED.error_message,
			compensation = EXCLUDED.compensation,
			cancel_requested = EXCLUDED.cancel_requested,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID, instance.DefinitionID, instance.DefinitionVersion,
		string(instance.Status), triggerData, variables, contextData,
		completedNodes, instance.SuspendedNodeID, instance.SuspendReason,
		instance.FailedNodeID, instance.ErrorMessage, compensation,
		instance.CancelRequested, instance.SessionID, instance.UserID,
		instance.CreatedAt, instance.UpdatedAt, instance.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, instanceSelect+` WHERE id = $1`, id)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("get", "instance", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, instanceSelect+` WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

const instanceSelect = `
	SELECT
		id, definition_id, definition_version, status, trigger_data,
		variables, context, completed_nodes, suspended_node_id,
		suspend_reason, failed_node_id, error_message, compensation,
		cancel_requested, session_id, user_id, created_at, updated_at,
		completed_at
	FROM workflow_instances
`

func scanInstance(row scanner) (*models.WorkflowInstance, error) {
	var (
		instance       models.WorkflowInstance
		status         string
		triggerData    []byte
		variables      []byte
		contextData    []byte
		completedNodes []byte
		compensation   []byte
	)

	err := row.Scan(
		&instance.ID, &instance.DefinitionID, &instance.DefinitionVersion,
		&status, &triggerData, &variables, &contextData, &completedNodes,
		&instance.SuspendedNodeID, &instance.SuspendReason,
		&instance.FailedNodeID, &instance.ErrorMessage, &compensation,
		&instance.CancelRequested, &instance.SessionID, &instance.UserID,
		&instance.CreatedAt, &instance.UpdatedAt, &instance.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatus(status)

	if err := unmarshalMap(triggerData, &instance.TriggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if err := unmarshalMap(variables, &instance.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := json.Unmarshal(contextData, &instance.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	if err := json.Unmarshal(completedNodes, &instance.CompletedNodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed nodes: %w", err)
	}

	if len(compensation) > 0 {
		if err := json.Unmarshal(compensation, &instance.Compensation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal compensation: %w", err)
		}
	}

	return &instance, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}

	return json.Marshal(m)
}

func unmarshalMap(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, dst)
}
