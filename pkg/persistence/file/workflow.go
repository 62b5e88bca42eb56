package file

import (
	"context"
	"errors"
	"os"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// DefinitionRepository stores workflow definitions as JSON documents.
type DefinitionRepository struct {
	p *Persistence
}

func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing := &models.WorkflowDefinition{}

	err := r.p.readDoc("definitions", def.ID, existing)
	if err == nil && existing.Status == models.DefinitionStatusPublished && existing.Version == def.Version {
		return persistence.NewStoreError("Save", "definition", def.ID, persistence.ErrDefinitionImmutable)
	}

	return r.p.writeDoc("definitions", def.ID, def)
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	def := &models.WorkflowDefinition{}

	err := r.p.readDoc("definitions", id, def)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("GetByID", "definition", id, persistence.ErrDefinitionNotFound)
		}

		return nil, err
	}

	return def, nil
}

func (r *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	var defs []*models.WorkflowDefinition

	err := r.p.listDocs("definitions", func(data []byte) error {
		def := &models.WorkflowDefinition{}
		if err := unmarshal(data, def); err != nil {
			return err
		}

		defs = append(defs, def)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return defs, nil
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.deleteDoc("definitions", id)
}

// InstanceRepository stores workflow instances as JSON documents.
type InstanceRepository struct {
	p *Persistence
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeDoc("instances", instance.ID, instance)
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance := &models.WorkflowInstance{}

	err := r.p.readDoc("instances", id, instance)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("GetByID", "instance", id, persistence.ErrInstanceNotFound)
		}

		return nil, err
	}

	return instance, nil
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	var instances []*models.WorkflowInstance

	err := r.p.listDocs("instances", func(data []byte) error {
		instance := &models.WorkflowInstance{}
		if err := unmarshal(data, instance); err != nil {
			return err
		}

		if status == "" || instance.Status == status {
			instances = append(instances, instance)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return instances, nil
}
