// Package file provides file-based persistence for the orchestration core.
// It is used for local development and tests; production deployments use the
// postgresql implementation.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stratumflow/stratum/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON documents. A single mutex serializes writes, which also gives the
// assignment upsert its required atomicity.
type Persistence struct {
	root string
	mu   sync.Mutex

	definitions *DefinitionRepository
	instances   *InstanceRepository
	checkpoints *CheckpointRepository
	deployments *DeploymentRepository
	assignments *AssignmentRepository
	metrics     *MetricsRepository
	trust       *TrustRepository
	decisions   *DecisionRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts both a plain path and a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.definitions = &DefinitionRepository{p: p}
	p.instances = &InstanceRepository{p: p}
	p.checkpoints = &CheckpointRepository{p: p}
	p.deployments = &DeploymentRepository{p: p}
	p.assignments = &AssignmentRepository{p: p}
	p.metrics = &MetricsRepository{p: p}
	p.trust = &TrustRepository{p: p}
	p.decisions = &DecisionRepository{p: p}

	return p
}

func (fp *Persistence) Definitions() persistence.DefinitionRepository { return fp.definitions }
func (fp *Persistence) Instances() persistence.InstanceRepository     { return fp.instances }
func (fp *Persistence) Checkpoints() persistence.CheckpointRepository { return fp.checkpoints }
func (fp *Persistence) Deployments() persistence.DeploymentRepository { return fp.deployments }
func (fp *Persistence) Assignments() persistence.AssignmentRepository { return fp.assignments }
func (fp *Persistence) Metrics() persistence.MetricsRepository        { return fp.metrics }
func (fp *Persistence) Trust() persistence.TrustRepository            { return fp.trust }
func (fp *Persistence) Decisions() persistence.DecisionRepository     { return fp.decisions }

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory is usable.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0o755); err != nil {
		return fmt.Errorf("persistence root not writable: %w", err)
	}

	return nil
}

// writeDoc marshals v into <root>/<kind>/<id>.json.
func (fp *Persistence) writeDoc(kind, id string, v any) error {
	dir := filepath.Join(fp.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	path := filepath.Join(dir, sanitize(id)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

// readDoc unmarshals <root>/<kind>/<id>.json into v. Returns os.ErrNotExist
// when the document does not exist.
func (fp *Persistence) readDoc(kind, id string, v any) error {
	path := filepath.Join(fp.root, kind, sanitize(id)+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

func (fp *Persistence) deleteDoc(kind, id string) error {
	path := filepath.Join(fp.root, kind, sanitize(id)+".json")

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// listDocs calls fn for every document of the given kind.
func (fp *Persistence) listDocs(kind string, fn func(data []byte) error) error {
	dir := filepath.Join(fp.root, kind)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		if err := fn(data); err != nil {
			return err
		}
	}

	return nil
}

// sanitize keeps ids usable as file names. Unit keys may contain separators.
func sanitize(id string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_")

	return replacer.Replace(id)
}
