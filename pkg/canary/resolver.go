package canary

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

const (
	assignmentCachePrefix = "stratum:canary:assignment:"
	assignmentCacheTTL    = 10 * time.Minute
	hashBuckets           = 10000
)

// ErrNoAssignableUnit is returned when a resolution request carries no
// instance, session or user identity.
var ErrNoAssignableUnit = errors.New("no assignable traffic unit in request")

// ResolutionRequest identifies the traffic unit asking which version to run.
// The most specific non-empty identity wins: instance, then session, then
// user.
type ResolutionRequest struct {
	InstanceID string
	SessionID  string
	UserID     string
}

type unitRef struct {
	kind models.AssignmentUnit
	key  string
}

func (r ResolutionRequest) units() []unitRef {
	var units []unitRef

	if r.InstanceID != "" {
		units = append(units, unitRef{models.UnitInstance, r.InstanceID})
	}
	if r.SessionID != "" {
		units = append(units, unitRef{models.UnitSession, r.SessionID})
	}
	if r.UserID != "" {
		units = append(units, unitRef{models.UnitUser, r.UserID})
	}

	return units
}

// Resolver hands out sticky version assignments. The durable store is the
// source of truth; Redis is a read-through cache in front of it.
type Resolver struct {
	assignments persistence.AssignmentRepository
	cache       redis.UniversalClient
	logger      *slog.Logger
}

func NewResolver(assignments persistence.AssignmentRepository, cache redis.UniversalClient, logger *slog.Logger) *Resolver {
	return &Resolver{assignments: assignments, cache: cache, logger: logger}
}

// Resolve returns the version the requesting unit must run for this
// deployment. The first call for a unit decides by deterministic hash bucket
// and persists the assignment; every later call returns the same version
// regardless of traffic fraction changes.
func (r *Resolver) Resolve(ctx context.Context, deployment *models.CanaryDeployment, req ResolutionRequest) (*models.CanaryAssignment, error) {
	units := req.units()
	if len(units) == 0 {
		return nil, ErrNoAssignableUnit
	}

	narrowest := units[0]

	// Only an in-flight canary splits traffic.
	switch deployment.Status {
	case models.DeploymentStatusCanary:
	case models.DeploymentStatusPromoted:
		return pseudoAssignment(deployment, narrowest.kind, narrowest.key, deployment.NewVersion), nil
	default:
		return pseudoAssignment(deployment, narrowest.kind, narrowest.key, deployment.OldVersion), nil
	}

	// An assignment at any level wins, most specific first.
	for _, unit := range units {
		if cached := r.fromCache(ctx, deployment.ID, unit.kind, unit.key); cached != nil {
			return cached, nil
		}

		assignment, err := r.assignments.Get(ctx, deployment.ID, unit.kind, unit.key)
		if err == nil {
			r.toCache(ctx, assignment)

			return assignment, nil
		}

		if !errors.Is(err, persistence.ErrAssignmentNotFound) {
			return nil, err
		}
	}

	version := deployment.OldVersion
	if bucket(deployment.ID, narrowest.kind, narrowest.key) < uint64(deployment.TrafficFraction*hashBuckets) {
		version = deployment.NewVersion
	}

	// Upsert is first-write-wins: under a concurrent first request the
	// returned assignment is whichever write landed.
	assignment, err := r.assignments.Upsert(ctx, &models.CanaryAssignment{
		DeploymentID:    deployment.ID,
		UnitKind:        narrowest.kind,
		UnitKey:         narrowest.key,
		AssignedVersion: version,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	r.toCache(ctx, assignment)

	return assignment, nil
}

// PurgeDeployment removes every sticky assignment of a rolled-back deployment
// along with their cache entries, so later resolutions follow the deployment's
// terminal state instead of a stale assignment. Returns the number of
// assignments deleted.
func (r *Resolver) PurgeDeployment(ctx context.Context, deploymentID string, versions ...string) (int, error) {
	for _, version := range versions {
		assigned, err := r.assignments.ListByVersion(ctx, deploymentID, version)
		if err != nil {
			return 0, err
		}

		for _, a := range assigned {
			r.Invalidate(ctx, a.DeploymentID, a.UnitKind, a.UnitKey)
		}
	}

	return r.assignments.DeleteForDeployment(ctx, deploymentID)
}

// Invalidate drops cached assignments for a unit, for use after a deployment
// reaches a terminal state.
func (r *Resolver) Invalidate(ctx context.Context, deploymentID string, kind models.AssignmentUnit, key string) {
	if r.cache == nil {
		return
	}

	if err := r.cache.Del(ctx, cacheKey(deploymentID, kind, key)).Err(); err != nil {
		r.logger.Warn("failed to invalidate assignment cache", "error", err)
	}
}

func (r *Resolver) fromCache(ctx context.Context, deploymentID string, kind models.AssignmentUnit, key string) *models.CanaryAssignment {
	if r.cache == nil {
		return nil
	}

	data, err := r.cache.Get(ctx, cacheKey(deploymentID, kind, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("assignment cache read failed", "error", err)
		}

		return nil
	}

	assignment := &models.CanaryAssignment{}
	if err := json.Unmarshal(data, assignment); err != nil {
		return nil
	}

	return assignment
}

func (r *Resolver) toCache(ctx context.Context, assignment *models.CanaryAssignment) {
	if r.cache == nil {
		return
	}

	data, err := json.Marshal(assignment)
	if err != nil {
		return
	}

	key := cacheKey(assignment.DeploymentID, assignment.UnitKind, assignment.UnitKey)
	if err := r.cache.Set(ctx, key, data, assignmentCacheTTL).Err(); err != nil {
		r.logger.Warn("assignment cache write failed", "error", err)
	}
}

func cacheKey(deploymentID string, kind models.AssignmentUnit, key string) string {
	return fmt.Sprintf("%s%s:%s:%s", assignmentCachePrefix, deploymentID, kind, key)
}

// bucket maps a unit to a stable value in [0, hashBuckets).
func bucket(deploymentID string, kind models.AssignmentUnit, key string) uint64 {
	sum := md5.Sum([]byte(deploymentID + ":" + string(kind) + ":" + key))

	return binary.BigEndian.Uint64(sum[:8]) % hashBuckets
}

// pseudoAssignment is a non-persisted answer for deployments that are not
// splitting traffic.
func pseudoAssignment(deployment *models.CanaryDeployment, kind models.AssignmentUnit, key, version string) *models.CanaryAssignment {
	return &models.CanaryAssignment{
		DeploymentID:    deployment.ID,
		UnitKind:        kind,
		UnitKey:         key,
		AssignedVersion: version,
	}
}
