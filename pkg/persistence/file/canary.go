package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// DeploymentRepository stores canary deployments as JSON documents.
type DeploymentRepository struct {
	p *Persistence
}

func (r *DeploymentRepository) Save(ctx context.Context, d *models.CanaryDeployment) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeDoc("deployments", d.ID, d)
}

func (r *DeploymentRepository) GetByID(ctx context.Context, id string) (*models.CanaryDeployment, error) {
	d := &models.CanaryDeployment{}

	err := r.p.readDoc("deployments", id, d)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("GetByID", "deployment", id, persistence.ErrDeploymentNotFound)
		}

		return nil, err
	}

	return d, nil
}

func (r *DeploymentRepository) ListByStatus(ctx context.Context, status models.DeploymentStatus) ([]*models.CanaryDeployment, error) {
	var deployments []*models.CanaryDeployment

	err := r.p.listDocs("deployments", func(data []byte) error {
		d := &models.CanaryDeployment{}
		if err := unmarshal(data, d); err != nil {
			return err
		}

		if status == "" || d.Status == status {
			deployments = append(deployments, d)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return deployments, nil
}

// AssignmentRepository stores sticky assignments, one document per
// (deployment, unit kind, unit key). The persistence mutex makes Upsert a
// linearizable check-then-insert.
type AssignmentRepository struct {
	p *Persistence
}

func assignmentID(deploymentID string, kind models.AssignmentUnit, key string) string {
	return fmt.Sprintf("%s.%s.%s", deploymentID, kind, key)
}

func (r *AssignmentRepository) Upsert(ctx context.Context, a *models.CanaryAssignment) (*models.CanaryAssignment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	id := assignmentID(a.DeploymentID, a.UnitKind, a.UnitKey)

	existing := &models.CanaryAssignment{}
	if err := r.p.readDoc("assignments", id, existing); err == nil {
		return existing, nil
	}

	if err := r.p.writeDoc("assignments", id, a); err != nil {
		return nil, err
	}

	return a, nil
}

func (r *AssignmentRepository) Get(ctx context.Context, deploymentID string, kind models.AssignmentUnit, key string) (*models.CanaryAssignment, error) {
	a := &models.CanaryAssignment{}

	err := r.p.readDoc("assignments", assignmentID(deploymentID, kind, key), a)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("Get", "assignment", key, persistence.ErrAssignmentNotFound)
		}

		return nil, err
	}

	return a, nil
}

func (r *AssignmentRepository) ListByVersion(ctx context.Context, deploymentID, version string) ([]*models.CanaryAssignment, error) {
	var assignments []*models.CanaryAssignment

	err := r.p.listDocs("assignments", func(data []byte) error {
		a := &models.CanaryAssignment{}
		if err := unmarshal(data, a); err != nil {
			return err
		}

		if a.DeploymentID == deploymentID && a.AssignedVersion == version {
			assignments = append(assignments, a)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *AssignmentRepository) DeleteForDeployment(ctx context.Context, deploymentID string) (int, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var ids []string

	err := r.p.listDocs("assignments", func(data []byte) error {
		a := &models.CanaryAssignment{}
		if err := unmarshal(data, a); err != nil {
			return err
		}

		if a.DeploymentID == deploymentID {
			ids = append(ids, assignmentID(a.DeploymentID, a.UnitKind, a.UnitKey))
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := r.p.deleteDoc("assignments", id); err != nil {
			return 0, err
		}
	}

	return len(ids), nil
}

// MetricsRepository stores metric samples in per-deployment append-only
// documents.
type MetricsRepository struct {
	p *Persistence
}

func (r *MetricsRepository) Append(ctx context.Context, s *models.DeploymentMetricsSample) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var samples []*models.DeploymentMetricsSample

	if err := r.p.readDoc("metrics", s.DeploymentID, &samples); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	samples = append(samples, s)

	return r.p.writeDoc("metrics", s.DeploymentID, samples)
}

func (r *MetricsRepository) QueryWindow(ctx context.Context, deploymentID, version string, since time.Time) ([]*models.DeploymentMetricsSample, error) {
	var samples []*models.DeploymentMetricsSample

	if err := r.p.readDoc("metrics", deploymentID, &samples); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	var window []*models.DeploymentMetricsSample

	for _, s := range samples {
		if s.Version == version && !s.WindowStart.Before(since) {
			window = append(window, s)
		}
	}

	sort.Slice(window, func(i, j int) bool {
		return window[i].WindowStart.Before(window[j].WindowStart)
	})

	return window, nil
}
