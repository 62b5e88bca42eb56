package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
)

// TrustRepository stores trust scores and their change history.
type TrustRepository struct {
	p *Persistence
}

func (r *TrustRepository) SaveScore(ctx context.Context, score *models.TrustScore) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeDoc("trust_scores", score.EntityID, score)
}

func (r *TrustRepository) GetScore(ctx context.Context, entityID string) (*models.TrustScore, error) {
	score := &models.TrustScore{}

	err := r.p.readDoc("trust_scores", entityID, score)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("GetScore", "trust score", entityID, persistence.ErrTrustScoreNotFound)
		}

		return nil, err
	}

	return score, nil
}

func (r *TrustRepository) AppendChange(ctx context.Context, change *models.TrustLevelChange) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var changes []*models.TrustLevelChange

	if err := r.p.readDoc("trust_history", change.EntityID, &changes); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	changes = append(changes, change)

	return r.p.writeDoc("trust_history", change.EntityID, changes)
}

func (r *TrustRepository) ListChanges(ctx context.Context, entityID string, limit int) ([]*models.TrustLevelChange, error) {
	var changes []*models.TrustLevelChange

	if err := r.p.readDoc("trust_history", entityID, &changes); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].CreatedAt.After(changes[j].CreatedAt)
	})

	if limit > 0 && len(changes) > limit {
		changes = changes[:limit]
	}

	return changes, nil
}

// DecisionRepository stores matrix entries, risk definitions, approvals and
// the execution audit log.
type DecisionRepository struct {
	p *Persistence
}

func matrixID(trust models.TrustLevel, risk models.RiskLevel) string {
	return fmt.Sprintf("%d.%s", trust, risk)
}

func (r *DecisionRepository) UpsertMatrixEntry(ctx context.Context, entry *models.DecisionMatrixEntry) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeDoc("decision_matrix", matrixID(entry.TrustLevel, entry.RiskLevel), entry)
}

func (r *DecisionRepository) GetMatrixEntry(ctx context.Context, trust models.TrustLevel, risk models.RiskLevel) (*models.DecisionMatrixEntry, error) {
	entry := &models.DecisionMatrixEntry{}

	err := r.p.readDoc("decision_matrix", matrixID(trust, risk), entry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("GetMatrixEntry", "matrix_entry",
				matrixID(trust, risk), persistence.ErrMatrixEntryNotFound)
		}

		return nil, err
	}

	return entry, nil
}

func (r *DecisionRepository) ListMatrix(ctx context.Context) ([]*models.DecisionMatrixEntry, error) {
	var entries []*models.DecisionMatrixEntry

	err := r.p.listDocs("decision_matrix", func(data []byte) error {
		entry := &models.DecisionMatrixEntry{}
		if err := unmarshal(data, entry); err != nil {
			return err
		}

		entries = append(entries, entry)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *DecisionRepository) UpsertRiskDefinition(ctx context.Context, def *models.RiskDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeDoc("risk_definitions", def.ActionType, def)
}

func (r *DecisionRepository) ListRiskDefinitions(ctx context.Context) ([]*models.RiskDefinition, error) {
	var defs []*models.RiskDefinition

	err := r.p.listDocs("risk_definitions", func(data []byte) error {
		def := &models.RiskDefinition{}
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

func (r *DecisionRepository) SaveApproval(ctx context.Context, approval *models.PendingApproval) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeDoc("approvals", approval.ID, approval)
}

func (r *DecisionRepository) GetApproval(ctx context.Context, id string) (*models.PendingApproval, error) {
	approval := &models.PendingApproval{}

	err := r.p.readDoc("approvals", id, approval)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("GetApproval", "approval", id, persistence.ErrApprovalNotFound)
		}

		return nil, err
	}

	return approval, nil
}

func (r *DecisionRepository) ListPendingApprovals(ctx context.Context) ([]*models.PendingApproval, error) {
	var approvals []*models.PendingApproval

	err := r.p.listDocs("approvals", func(data []byte) error {
		approval := &models.PendingApproval{}
		if err := unmarshal(data, approval); err != nil {
			return err
		}

		if !approval.Resolved() {
			approvals = append(approvals, approval)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].RequestedAt.Before(approvals[j].RequestedAt)
	})

	return approvals, nil
}

func (r *DecisionRepository) AppendAuditEntry(ctx context.Context, entry *models.AutoExecutionLogEntry) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeDoc("execution_audit", entry.ID, entry)
}

func (r *DecisionRepository) ListAuditEntries(ctx context.Context, actionType string, limit int) ([]*models.AutoExecutionLogEntry, error) {
	var entries []*models.AutoExecutionLogEntry

	err := r.p.listDocs("execution_audit", func(data []byte) error {
		entry := &models.AutoExecutionLogEntry{}
		if err := unmarshal(data, entry); err != nil {
			return err
		}

		if actionType == "" || entry.ActionType == actionType {
			entries = append(entries, entry)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}
