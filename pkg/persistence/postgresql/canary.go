package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// DeploymentRepository stores canary deployments in PostgreSQL.
type DeploymentRepository struct {
	db *sql.DB
}

func (r *DeploymentRepository) Save(ctx context.Context, d *models.CanaryDeployment) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}

	d.UpdatedAt = now

	query := `
		INSERT INTO canary_deployments (
			id, target_type, target_id, old_version, new_version,
			traffic_fraction, strategy, compensation_strategy, status,
			auto_rollback, rollback_reason, created_at, updated_at,
			promoted_at, rolled_back_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (id) DO UPDATE SET
			traffic_fraction = EXCLUDED.traffic_fraction,
			strategy = EXCLUDED.strategy,
			compensation_strategy = EXCLUDED.compensation_strategy,
			status = EXCLUDED.status,
			auto_rollback = EXCLUDED.auto_rollback,
			rollback_reason = EXCLUDED.rollback_reason,
			updated_at = EXCLUDED.updated_at,
			promoted_at = EXCLUDED.promoted_at,
			rolled_back_at = EXCLUDED.rolled_back_at
	`

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.TargetType, d.TargetID, d.OldVersion, d.NewVersion,
		d.TrafficFraction, d.Strategy, string(d.CompensationStrategy),
		string(d.Status), d.AutoRollback, d.RollbackReason,
		d.CreatedAt, d.UpdatedAt, d.PromotedAt, d.RolledBackAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save deployment: %w", err)
	}

	return nil
}

func (r *DeploymentRepository) GetByID(ctx context.Context, id string) (*models.CanaryDeployment, error) {
	row := r.db.QueryRowContext(ctx, deploymentSelect+` WHERE id = $1`, id)

	d, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("get", "deployment", id, persistence.ErrDeploymentNotFound)
		}

		return nil, fmt.Errorf("failed to scan deployment: %w", err)
	}

	return d, nil
}

func (r *DeploymentRepository) ListByStatus(ctx context.Context, status models.DeploymentStatus) ([]*models.CanaryDeployment, error) {
	rows, err := r.db.QueryContext(ctx, deploymentSelect+` WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	deployments := make([]*models.CanaryDeployment, 0)

	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}

		deployments = append(deployments, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	return deployments, nil
}

const deploymentSelect = `
	SELECT
		id, target_type, target_id, old_version, new_version,
		traffic_fraction, strategy, compensation_strategy, status,
		auto_rollback, rollback_reason, created_at, updated_at,
		promoted_at, rolled_back_at
	FROM canary_deployments
`

func scanDeployment(row scanner) (*models.CanaryDeployment, error) {
	var (
		d            models.CanaryDeployment
		compensation string
		status       string
	)

	err := row.Scan(
		&d.ID, &d.TargetType, &d.TargetID, &d.OldVersion, &d.NewVersion,
		&d.TrafficFraction, &d.Strategy, &compensation, &status,
		&d.AutoRollback, &d.RollbackReason, &d.CreatedAt, &d.UpdatedAt,
		&d.PromotedAt, &d.RolledBackAt,
	)
	if err != nil {
		return nil, err
	}

	d.CompensationStrategy = models.CompensationStrategy(compensation)
	d.Status = models.DeploymentStatus(status)

	return &d, nil
}

// AssignmentRepository stores sticky canary assignments. First write wins:
// concurrent upserts for the same unit race through ON CONFLICT DO NOTHING
// and every caller reads back the row that actually landed.
type AssignmentRepository struct {
	db *sql.DB
}

func (r *AssignmentRepository) Upsert(ctx context.Context, a *models.CanaryAssignment) (*models.CanaryAssignment, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO canary_assignments (
			deployment_id, unit_kind, unit_key, assigned_version, created_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (deployment_id, unit_kind, unit_key) DO NOTHING
	`, a.DeploymentID, string(a.UnitKind), a.UnitKey, a.AssignedVersion, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert assignment: %w", err)
	}

	return r.Get(ctx, a.DeploymentID, a.UnitKind, a.UnitKey)
}

func (r *AssignmentRepository) Get(ctx context.Context, deploymentID string, kind models.AssignmentUnit, key string) (*models.CanaryAssignment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT deployment_id, unit_kind, unit_key, assigned_version, created_at
		FROM canary_assignments
		WHERE deployment_id = $1 AND unit_kind = $2 AND unit_key = $3
	`, deploymentID, string(kind), key)

	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("get", "assignment", key, persistence.ErrAssignmentNotFound)
		}

		return nil, fmt.Errorf("failed to scan assignment: %w", err)
	}

	return a, nil
}

func (r *AssignmentRepository) ListByVersion(ctx context.Context, deploymentID, version string) ([]*models.CanaryAssignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT deployment_id, unit_kind, unit_key, assigned_version, created_at
		FROM canary_assignments
		WHERE deployment_id = $1 AND assigned_version = $2
		ORDER BY created_at
	`, deploymentID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]*models.CanaryAssignment, 0)

	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}

func (r *AssignmentRepository) DeleteForDeployment(ctx context.Context, deploymentID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM canary_assignments WHERE deployment_id = $1`, deploymentID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assignments: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(affected), nil
}

func scanAssignment(row scanner) (*models.CanaryAssignment, error) {
	var (
		a    models.CanaryAssignment
		kind string
	)

	err := row.Scan(&a.DeploymentID, &kind, &a.UnitKey, &a.AssignedVersion, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.UnitKind = models.AssignmentUnit(kind)

	return &a, nil
}

// MetricsRepository stores append-only deployment metric samples.
type MetricsRepository struct {
	db *sql.DB
}

func (r *MetricsRepository) Append(ctx context.Context, s *models.DeploymentMetricsSample) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deployment_metrics (
			deployment_id, version, error_rate, latency_p95_ms,
			sample_count, window_start
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, s.DeploymentID, s.Version, s.ErrorRate, s.LatencyP95, s.SampleCount, s.WindowStart)
	if err != nil {
		return fmt.Errorf("failed to append metrics sample: %w", err)
	}

	return nil
}

func (r *MetricsRepository) QueryWindow(ctx context.Context, deploymentID, version string, since time.Time) ([]*models.DeploymentMetricsSample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT deployment_id, version, error_rate, latency_p95_ms,
			sample_count, window_start
		FROM deployment_metrics
		WHERE deployment_id = $1 AND version = $2 AND window_start >= $3
		ORDER BY window_start
	`, deploymentID, version, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	samples := make([]*models.DeploymentMetricsSample, 0)

	for rows.Next() {
		var s models.DeploymentMetricsSample

		err := rows.Scan(
			&s.DeploymentID, &s.Version, &s.ErrorRate, &s.LatencyP95,
			&s.SampleCount, &s.WindowStart,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metrics sample: %w", err)
		}

		samples = append(samples, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics: %w", err)
	}

	return samples, nil
}
