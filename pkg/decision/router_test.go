package decision

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/metrics"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/persistence"
	"github.com/stratumflow/stratum/pkg/persistence/file"
)

type fixedTrust struct {
	level models.TrustLevel
}

func (f fixedTrust) CurrentLevel(ctx context.Context, entityID string) (models.TrustLevel, error) {
	return f.level, nil
}

func newTestRouter(t *testing.T, trust models.TrustLevel) (*Router, persistence.DecisionRepository) {
	t.Helper()

	repo := file.NewPersistence(t.TempDir()).Decisions()
	logger := slog.Default()
	matrix := NewMatrixService(repo, logger)
	require.NoError(t, matrix.Seed(context.Background()))

	risk := NewRiskEvaluator(repo, models.RiskHigh)
	router := NewRouter(repo, risk, matrix, fixedTrust{level: trust}, nil, nil, logger)

	return router, repo
}

func TestEvaluateMatrixGapDefaultsToApproval(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Decisions()
	logger := slog.Default()

	// Unseeded matrix: every pair is a gap.
	router := NewRouter(repo, NewRiskEvaluator(repo, models.RiskLow),
		NewMatrixService(repo, logger), fixedTrust{level: models.TrustFullAuto}, nil, nil, logger)

	result, err := router.Evaluate(context.Background(), "send_notification", "flow-1")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionApproval, result.Decision)
	assert.Contains(t, result.Reason, "matrix gap")
}

func TestRouteAutoCreatesNoPendingApproval(t *testing.T) {
	router, repo := newTestRouter(t, models.TrustFullAuto)

	require.NoError(t, repo.UpsertRiskDefinition(context.Background(), &models.RiskDefinition{
		ActionType: "send_notification",
		Level:      models.RiskLow,
	}))

	result, err := router.Route(context.Background(), "send_notification", "flow-1", "inst-1", "gate")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAuto, result.Decision)
	assert.Empty(t, result.ApprovalID)

	pending, err := repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	audit, err := repo.ListAuditEntries(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, models.DecisionAuto, audit[0].Decision)
}

func TestRouteApprovalParksAndResolves(t *testing.T) {
	router, repo := newTestRouter(t, models.TrustProposed)

	require.NoError(t, repo.UpsertRiskDefinition(context.Background(), &models.RiskDefinition{
		ActionType: "update_record",
		Level:      models.RiskMedium,
	}))

	result, err := router.Route(context.Background(), "update_record", "flow-1", "inst-1", "gate")
	require.NoError(t, err)
	require.Equal(t, models.DecisionApproval, result.Decision)
	require.NotEmpty(t, result.ApprovalID)

	pending, err := repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "gate", pending[0].NodeID)

	approval, err := router.Resolve(context.Background(), result.ApprovalID, true, "alice", "looks safe")
	require.NoError(t, err)
	require.NotNil(t, approval.Approved)
	assert.True(t, *approval.Approved)

	_, err = router.Resolve(context.Background(), result.ApprovalID, false, "bob", "")
	require.Error(t, err)

	pending, err = repo.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApprovalLifecycleTracksPendingGauge(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Decisions()
	logger := slog.Default()
	matrix := NewMatrixService(repo, logger)
	require.NoError(t, matrix.Seed(context.Background()))

	reg := prometheus.NewRegistry()
	router := NewRouter(repo, NewRiskEvaluator(repo, models.RiskHigh), matrix,
		fixedTrust{level: models.TrustProposed}, nil, metrics.New(reg), logger)

	require.NoError(t, repo.UpsertRiskDefinition(context.Background(), &models.RiskDefinition{
		ActionType: "update_record",
		Level:      models.RiskMedium,
	}))

	result, err := router.Route(context.Background(), "update_record", "flow-1", "inst-1", "gate")
	require.NoError(t, err)
	require.Equal(t, models.DecisionApproval, result.Decision)
	assert.Equal(t, 1.0, gaugeValue(t, reg, "stratum_pending_approvals"))

	_, err = router.Resolve(context.Background(), result.ApprovalID, true, "alice", "looks safe")
	require.NoError(t, err)
	assert.Equal(t, 0.0, gaugeValue(t, reg, "stratum_pending_approvals"))
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}

		for _, m := range fam.GetMetric() {
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
		}
	}

	return 0
}

func TestRouteCriticalRiskRejected(t *testing.T) {
	router, repo := newTestRouter(t, models.TrustFullAuto)

	require.NoError(t, repo.UpsertRiskDefinition(context.Background(), &models.RiskDefinition{
		ActionType: "drop_*",
		Pattern:    true,
		Level:      models.RiskCritical,
	}))

	result, err := router.Route(context.Background(), "drop_table", "flow-1", "inst-1", "gate")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReject, result.Decision)
	assert.Empty(t, result.ApprovalID)
}

func TestRiskEvaluatorPrecedence(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).Decisions()
	ctx := context.Background()

	require.NoError(t, repo.UpsertRiskDefinition(ctx, &models.RiskDefinition{
		ActionType: "notify_*", Pattern: true, Level: models.RiskLow,
	}))
	require.NoError(t, repo.UpsertRiskDefinition(ctx, &models.RiskDefinition{
		ActionType: "notify_billing_*", Pattern: true, Level: models.RiskMedium,
	}))
	require.NoError(t, repo.UpsertRiskDefinition(ctx, &models.RiskDefinition{
		ActionType: "notify_billing_refund", Level: models.RiskHigh,
	}))

	eval := NewRiskEvaluator(repo, models.RiskCritical)

	level, _, err := eval.Classify(ctx, "notify_billing_refund")
	require.NoError(t, err)
	assert.Equal(t, models.RiskHigh, level)

	level, _, err = eval.Classify(ctx, "notify_billing_invoice")
	require.NoError(t, err)
	assert.Equal(t, models.RiskMedium, level)

	level, _, err = eval.Classify(ctx, "notify_user")
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, level)

	level, reason, err := eval.Classify(ctx, "delete_everything")
	require.NoError(t, err)
	assert.Equal(t, models.RiskCritical, level)
	assert.Contains(t, reason, "default")
}

func TestDefaultMatrixCoversGrid(t *testing.T) {
	entries := DefaultMatrix()
	require.Len(t, entries, 16)

	byPair := make(map[[2]string]models.Decision, len(entries))
	for _, e := range entries {
		byPair[[2]string{e.TrustLevel.Name(), string(e.RiskLevel)}] = e.Decision
	}

	assert.Equal(t, models.DecisionAuto, byPair[[2]string{"full_auto", "low"}])
	assert.Equal(t, models.DecisionAuto, byPair[[2]string{"full_auto", "medium"}])
	assert.Equal(t, models.DecisionApproval, byPair[[2]string{"full_auto", "high"}])
	assert.Equal(t, models.DecisionReject, byPair[[2]string{"full_auto", "critical"}])
	assert.Equal(t, models.DecisionAuto, byPair[[2]string{"low_risk_auto", "low"}])
	assert.Equal(t, models.DecisionApproval, byPair[[2]string{"proposed", "low"}])
	assert.Equal(t, models.DecisionReject, byPair[[2]string{"proposed", "critical"}])
}
