package decision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stratumflow/stratum/pkg/eventbus"
	"github.com/stratumflow/stratum/pkg/events"
	"github.com/stratumflow/stratum/pkg/metrics"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// TrustReader resolves the current trust level of a deployable. Entities with
// no recorded score are level 0.
type TrustReader interface {
	CurrentLevel(ctx context.Context, entityID string) (models.TrustLevel, error)
}

// Router is the policy gate in front of every governed action. Evaluate is a
// pure lookup; Route additionally records the audit entry and, for approval
// decisions, creates the pending approval record.
type Router struct {
	repo    persistence.DecisionRepository
	risk    *RiskEvaluator
	matrix  *MatrixService
	trust   TrustReader
	bus     eventbus.EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRouter(
	repo persistence.DecisionRepository,
	risk *RiskEvaluator,
	matrix *MatrixService,
	trust TrustReader,
	bus eventbus.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	return &Router{repo: repo, risk: risk, matrix: matrix, trust: trust, bus: bus, metrics: m, logger: logger}
}

// Evaluate classifies the action, fetches the entity's trust level and reads
// the matrix. It has no side effects.
func (r *Router) Evaluate(ctx context.Context, actionType, entityID string) (*models.RoutingResult, error) {
	riskLevel, riskReason, err := r.risk.Classify(ctx, actionType)
	if err != nil {
		return nil, err
	}

	trustLevel, err := r.trust.CurrentLevel(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("resolving trust level for '%s': %w", entityID, err)
	}

	verdict, gap, err := r.matrix.Lookup(ctx, trustLevel, riskLevel)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("trust %s (%d), risk %s (%s): %s",
		trustLevel.Name(), int(trustLevel), riskLevel, riskReason, verdict)
	if gap {
		reason += " (matrix gap default)"
	}

	return &models.RoutingResult{
		Decision:   verdict,
		Reason:     reason,
		TrustLevel: trustLevel,
		RiskLevel:  riskLevel,
	}, nil
}

// Route evaluates an action and records the outcome: every routing appends an
// audit entry, and an approval decision additionally creates a pending
// approval bound to the suspended node.
func (r *Router) Route(ctx context.Context, actionType, entityID, instanceID, nodeID string) (*models.RoutingResult, error) {
	result, err := r.Evaluate(ctx, actionType, entityID)
	if err != nil {
		return nil, err
	}

	if err := r.repo.AppendAuditEntry(ctx, &models.AutoExecutionLogEntry{
		ID:         uuid.New().String(),
		ActionType: actionType,
		EntityID:   entityID,
		TrustLevel: result.TrustLevel,
		RiskLevel:  result.RiskLevel,
		Decision:   result.Decision,
		Reason:     result.Reason,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("recording audit entry: %w", err)
	}

	if result.Decision != models.DecisionApproval {
		return result, nil
	}

	approval := &models.PendingApproval{
		ID:          uuid.New().String(),
		InstanceID:  instanceID,
		NodeID:      nodeID,
		ActionType:  actionType,
		EntityID:    entityID,
		TrustLevel:  result.TrustLevel,
		RiskLevel:   result.RiskLevel,
		Reason:      result.Reason,
		RequestedAt: time.Now().UTC(),
	}

	if err := r.repo.SaveApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("creating pending approval: %w", err)
	}

	result.ApprovalID = approval.ID
	r.refreshPendingGauge(ctx)

	r.publish(ctx, instanceID, events.ApprovalRequested{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.ApprovalRequestedEvent,
			Timestamp:  time.Now().UTC(),
			InstanceID: instanceID,
		},
		ApprovalID: approval.ID,
		ActionType: actionType,
		EntityID:   entityID,
		RiskLevel:  result.RiskLevel,
		Reason:     result.Reason,
	})

	r.logger.Info("action parked for approval",
		"approval_id", approval.ID,
		"action_type", actionType,
		"entity_id", entityID,
		"instance_id", instanceID)

	return result, nil
}

// Resolve records a human verdict on a pending approval. Resolving an already
// decided approval is rejected.
func (r *Router) Resolve(ctx context.Context, approvalID string, approved bool, decidedBy, note string) (*models.PendingApproval, error) {
	approval, err := r.repo.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	if approval.Resolved() {
		return nil, fmt.Errorf("approval '%s' already decided at %s", approvalID, approval.DecidedAt.Format(time.RFC3339))
	}

	now := time.Now().UTC()
	approval.DecidedAt = &now
	approval.Approved = &approved
	approval.DecidedBy = decidedBy
	approval.DecisionNote = note

	if err := r.repo.SaveApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("saving approval decision: %w", err)
	}

	r.refreshPendingGauge(ctx)

	r.publish(ctx, approval.InstanceID, events.ApprovalResolved{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.ApprovalResolvedEvent,
			Timestamp:  now,
			InstanceID: approval.InstanceID,
		},
		ApprovalID: approvalID,
		Approved:   approved,
		DecidedBy:  decidedBy,
	})

	return approval, nil
}

// refreshPendingGauge recounts undecided approvals after every create or
// resolve. The listing is skipped entirely when no metrics are wired.
func (r *Router) refreshPendingGauge(ctx context.Context) {
	if r.metrics == nil {
		return
	}

	pending, err := r.repo.ListPendingApprovals(ctx)
	if err != nil {
		r.logger.Warn("could not recount pending approvals", "error", err)

		return
	}

	r.metrics.SetPendingApprovals(len(pending))
}

func (r *Router) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.bus == nil {
		return
	}

	if err := r.bus.Publish(ctx, key, event); err != nil {
		r.logger.Warn("failed to publish decision event", "error", err)
	}
}
