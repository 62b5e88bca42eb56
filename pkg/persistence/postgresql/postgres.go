// Package postgresql provides the PostgreSQL persistence implementation for
// the orchestration core.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/stratumflow/stratum/pkg/persistence"
	"github.com/stratumflow/stratum/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	definitions *DefinitionRepository
	instances   *InstanceRepository
	checkpoints *CheckpointRepository
	deployments *DeploymentRepository
	assignments *AssignmentRepository
	metrics     *MetricsRepository
	trust       *TrustRepository
	decisions   *DecisionRepository
}

// NewPersistence connects to PostgreSQL and runs migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	p := &Persistence{db: database, logger: logger}
	p.definitions = &DefinitionRepository{db: database}
	p.instances = &InstanceRepository{db: database}
	p.checkpoints = &CheckpointRepository{db: database}
	p.deployments = &DeploymentRepository{db: database}
	p.assignments = &AssignmentRepository{db: database}
	p.metrics = &MetricsRepository{db: database}
	p.trust = &TrustRepository{db: database}
	p.decisions = &DecisionRepository{db: database}

	return p, nil
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }
func (p *Persistence) Instances() persistence.InstanceRepository     { return p.instances }
func (p *Persistence) Checkpoints() persistence.CheckpointRepository { return p.checkpoints }
func (p *Persistence) Deployments() persistence.DeploymentRepository { return p.deployments }
func (p *Persistence) Assignments() persistence.AssignmentRepository { return p.assignments }
func (p *Persistence) Metrics() persistence.MetricsRepository        { return p.metrics }
func (p *Persistence) Trust() persistence.TrustRepository            { return p.trust }
func (p *Persistence) Decisions() persistence.DecisionRepository     { return p.decisions }

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
