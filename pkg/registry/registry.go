// Package registry holds the closed set of node factories the orchestrator
// can instantiate, and validates node configs against each factory's schema.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	factories map[models.NodeType]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[models.NodeType]protocol.NodeFactory),
	}
}

// Register adds a factory. A duplicate registration for the same type
// replaces the previous factory.
func (r *Registry) Register(factory protocol.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
}

// Create validates the config against the factory schema and builds the
// node. Unknown node types are an error; the registry is a closed set.
func (r *Registry) Create(ctx context.Context, nodeType models.NodeType, id string, config map[string]any) (protocol.Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	if err := validateConfig(factory.Schema(), config); err != nil {
		return nil, fmt.Errorf("invalid config for node '%s' (%s): %w", id, nodeType, err)
	}

	return factory.Create(ctx, id, config)
}

// Factory returns the registered factory for a type, or false.
func (r *Registry) Factory(nodeType models.NodeType) (protocol.NodeFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[nodeType]

	return factory, ok
}

// Available returns the registered node types.
func (r *Registry) Available() []models.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.NodeType, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	return types
}

// ValidateDefinition checks that every node in a definition references a
// registered type and carries a schema-valid config. Graph shape checks
// live in the orchestrator.
func (r *Registry) ValidateDefinition(def *models.WorkflowDefinition) error {
	var problems []string

	for _, node := range def.Nodes {
		factory, ok := r.Factory(node.Type)
		if !ok {
			problems = append(problems, fmt.Sprintf("node '%s': unknown type '%s'", node.ID, node.Type))

			continue
		}

		if err := validateConfig(factory.Schema(), node.Config); err != nil {
			problems = append(problems, fmt.Sprintf("node '%s': %v", node.ID, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("definition '%s' invalid: %s", def.ID, strings.Join(problems, "; "))
	}

	return nil
}

func validateConfig(schema, config map[string]any) error {
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("config validation errors: %s", strings.Join(descriptions, "; "))
	}

	return nil
}
