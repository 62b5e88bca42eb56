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

// TrustRepository stores trust scores and level-change history in PostgreSQL.
type TrustRepository struct {
	db *sql.DB
}

func (r *TrustRepository) SaveScore(ctx context.Context, score *models.TrustScore) error {
	components, err := json.Marshal(score.Components)
	if err != nil {
		return fmt.Errorf("failed to marshal components: %w", err)
	}

	if score.EvaluatedAt.IsZero() {
		score.EvaluatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO trust_scores (entity_id, level, score, components, evaluated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_id) DO UPDATE SET
			level = EXCLUDED.level,
			score = EXCLUDED.score,
			components = EXCLUDED.components,
			evaluated_at = EXCLUDED.evaluated_at
	`, score.EntityID, int(score.Level), score.Score, components, score.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to save trust score: %w", err)
	}

	return nil
}

func (r *TrustRepository) GetScore(ctx context.Context, entityID string) (*models.TrustScore, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entity_id, level, score, components, evaluated_at
		FROM trust_scores
		WHERE entity_id = $1
	`, entityID)

	var (
		score      models.TrustScore
		level      int
		components []byte
	)

	err := row.Scan(&score.EntityID, &level, &score.Score, &components, &score.EvaluatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("get", "trust_score", entityID, persistence.ErrTrustScoreNotFound)
		}

		return nil, fmt.Errorf("failed to scan trust score: %w", err)
	}

	score.Level = models.TrustLevel(level)

	if err := json.Unmarshal(components, &score.Components); err != nil {
		return nil, fmt.Errorf("failed to unmarshal components: %w", err)
	}

	return &score, nil
}

func (r *TrustRepository) AppendChange(ctx context.Context, change *models.TrustLevelChange) error {
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trust_level_changes (
			entity_id, previous_level, new_level, reason, triggered_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, change.EntityID, int(change.PreviousLevel), int(change.NewLevel),
		change.Reason, change.TriggeredBy, change.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append trust change: %w", err)
	}

	return nil
}

func (r *TrustRepository) ListChanges(ctx context.Context, entityID string, limit int) ([]*models.TrustLevelChange, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, previous_level, new_level, reason, triggered_by, created_at
		FROM trust_level_changes
		WHERE entity_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trust changes: %w", err)
	}
	defer rows.Close()

	changes := make([]*models.TrustLevelChange, 0)

	for rows.Next() {
		var (
			change   models.TrustLevelChange
			previous int
			next     int
		)

		err := rows.Scan(&change.EntityID, &previous, &next, &change.Reason,
			&change.TriggeredBy, &change.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trust change: %w", err)
		}

		change.PreviousLevel = models.TrustLevel(previous)
		change.NewLevel = models.TrustLevel(next)
		changes = append(changes, &change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trust changes: %w", err)
	}

	return changes, nil
}

// DecisionRepository stores the decision matrix, risk catalog, pending
// approvals and the execution audit log in PostgreSQL.
type DecisionRepository struct {
	db *sql.DB
}

func (r *DecisionRepository) UpsertMatrixEntry(ctx context.Context, entry *models.DecisionMatrixEntry) error {
	entry.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO decision_matrix (trust_level, risk_level, decision, description, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (trust_level, risk_level) DO UPDATE SET
			decision = EXCLUDED.decision,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at
	`, int(entry.TrustLevel), string(entry.RiskLevel), string(entry.Decision),
		entry.Description, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert matrix entry: %w", err)
	}

	return nil
}

func (r *DecisionRepository) GetMatrixEntry(ctx context.Context, trust models.TrustLevel, risk models.RiskLevel) (*models.DecisionMatrixEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT trust_level, risk_level, decision, description, updated_at
		FROM decision_matrix
		WHERE trust_level = $1 AND risk_level = $2
	`, int(trust), string(risk))

	entry, err := scanMatrixEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("get", "matrix_entry",
				fmt.Sprintf("%d.%s", trust, risk), persistence.ErrMatrixEntryNotFound)
		}

		return nil, fmt.Errorf("failed to scan matrix entry: %w", err)
	}

	return entry, nil
}

func (r *DecisionRepository) ListMatrix(ctx context.Context) ([]*models.DecisionMatrixEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT trust_level, risk_level, decision, description, updated_at
		FROM decision_matrix
		ORDER BY trust_level, risk_level
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision matrix: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.DecisionMatrixEntry, 0)

	for rows.Next() {
		entry, err := scanMatrixEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan matrix entry: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matrix entries: %w", err)
	}

	return entries, nil
}

func scanMatrixEntry(row scanner) (*models.DecisionMatrixEntry, error) {
	var (
		entry    models.DecisionMatrixEntry
		trust    int
		risk     string
		decision string
	)

	err := row.Scan(&trust, &risk, &decision, &entry.Description, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}

	entry.TrustLevel = models.TrustLevel(trust)
	entry.RiskLevel = models.RiskLevel(risk)
	entry.Decision = models.Decision(decision)

	return &entry, nil
}

func (r *DecisionRepository) UpsertRiskDefinition(ctx context.Context, def *models.RiskDefinition) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_definitions (
			action_type, pattern, level, category, reversible, description
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (action_type) DO UPDATE SET
			pattern = EXCLUDED.pattern,
			level = EXCLUDED.level,
			category = EXCLUDED.category,
			reversible = EXCLUDED.reversible,
			description = EXCLUDED.description
	`, def.ActionType, def.Pattern, string(def.Level), def.Category,
		def.Reversible, def.Description)
	if err != nil {
		return fmt.Errorf("failed to upsert risk definition: %w", err)
	}

	return nil
}

func (r *DecisionRepository) ListRiskDefinitions(ctx context.Context) ([]*models.RiskDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT action_type, pattern, level, category, reversible, description
		FROM risk_definitions
		ORDER BY action_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]*models.RiskDefinition, 0)

	for rows.Next() {
		var (
			def   models.RiskDefinition
			level string
		)

		err := rows.Scan(&def.ActionType, &def.Pattern, &level, &def.Category,
			&def.Reversible, &def.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk definition: %w", err)
		}

		def.Level = models.RiskLevel(level)
		defs = append(defs, &def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk definitions: %w", err)
	}

	return defs, nil
}

func (r *DecisionRepository) SaveApproval(ctx context.Context, approval *models.PendingApproval) error {
	if approval.RequestedAt.IsZero() {
		approval.RequestedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_approvals (
			id, instance_id, node_id, action_type, entity_id, trust_level,
			risk_level, reason, requested_at, decided_at, approved,
			decided_by, decision_note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			decided_at = EXCLUDED.decided_at,
			approved = EXCLUDED.approved,
			decided_by = EXCLUDED.decided_by,
			decision_note = EXCLUDED.decision_note
	`, approval.ID, approval.InstanceID, approval.NodeID, approval.ActionType,
		approval.EntityID, int(approval.TrustLevel), string(approval.RiskLevel),
		approval.Reason, approval.RequestedAt, approval.DecidedAt,
		approval.Approved, approval.DecidedBy, approval.DecisionNote)
	if err != nil {
		return fmt.Errorf("failed to save approval: %w", err)
	}

	return nil
}

func (r *DecisionRepository) GetApproval(ctx context.Context, id string) (*models.PendingApproval, error) {
	row := r.db.QueryRowContext(ctx, approvalSelect+` WHERE id = $1`, id)

	approval, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("get", "approval", id, persistence.ErrApprovalNotFound)
		}

		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}

	return approval, nil
}

func (r *DecisionRepository) ListPendingApprovals(ctx context.Context) ([]*models.PendingApproval, error) {
	rows, err := r.db.QueryContext(ctx, approvalSelect+` WHERE decided_at IS NULL ORDER BY requested_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	approvals := make([]*models.PendingApproval, 0)

	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		approvals = append(approvals, approval)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

const approvalSelect = `
	SELECT
		id, instance_id, node_id, action_type, entity_id, trust_level,
		risk_level, reason, requested_at, decided_at, approved,
		decided_by, decision_note
	FROM pending_approvals
`

func scanApproval(row scanner) (*models.PendingApproval, error) {
	var (
		approval models.PendingApproval
		trust    int
		risk     string
	)

	err := row.Scan(
		&approval.ID, &approval.InstanceID, &approval.NodeID,
		&approval.ActionType, &approval.EntityID, &trust, &risk,
		&approval.Reason, &approval.RequestedAt, &approval.DecidedAt,
		&approval.Approved, &approval.DecidedBy, &approval.DecisionNote,
	)
	if err != nil {
		return nil, err
	}

	approval.TrustLevel = models.TrustLevel(trust)
	approval.RiskLevel = models.RiskLevel(risk)

	return &approval, nil
}

func (r *DecisionRepository) AppendAuditEntry(ctx context.Context, entry *models.AutoExecutionLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO execution_audit (
			id, action_type, entity_id, trust_level, risk_level,
			decision, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ActionType, entry.EntityID, int(entry.TrustLevel),
		string(entry.RiskLevel), string(entry.Decision), entry.Reason, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

func (r *DecisionRepository) ListAuditEntries(ctx context.Context, actionType string, limit int) ([]*models.AutoExecutionLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, action_type, entity_id, trust_level, risk_level,
			decision, reason, created_at
		FROM execution_audit
	`

	var (
		rows *sql.Rows
		err  error
	)

	if actionType != "" {
		rows, err = r.db.QueryContext(ctx, query+` WHERE action_type = $1 ORDER BY created_at DESC LIMIT $2`, actionType, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query+` ORDER BY created_at DESC LIMIT $1`, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AutoExecutionLogEntry, 0)

	for rows.Next() {
		var (
			entry    models.AutoExecutionLogEntry
			trust    int
			risk     string
			decision string
		)

		err := rows.Scan(&entry.ID, &entry.ActionType, &entry.EntityID,
			&trust, &risk, &decision, &entry.Reason, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.TrustLevel = models.TrustLevel(trust)
		entry.RiskLevel = models.RiskLevel(risk)
		entry.Decision = models.Decision(decision)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
