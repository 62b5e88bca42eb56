package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type stubRouter struct {
	result *models.RoutingResult
	calls  int
}

func (s *stubRouter) Route(_ context.Context, _, _, _, _ string) (*models.RoutingResult, error) {
	s.calls++

	return s.result, nil
}

func newNode(t *testing.T, router DecisionRouter) *ApprovalNode {
	t.Helper()

	node, err := NewApprovalNode("gate", map[string]any{"action_type": "data_export"}, router)
	require.NoError(t, err)

	return node
}

func TestApprovalNodeAutoShortCircuits(t *testing.T) {
	router := &stubRouter{result: &models.RoutingResult{
		Decision:   models.DecisionAuto,
		Reason:     "full_auto trust with low risk",
		TrustLevel: models.TrustFullAuto,
		RiskLevel:  models.RiskLow,
	}}

	outcome, err := newNode(t, router).Execute(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"})
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomeSuccess, outcome.Status)
	assert.Equal(t, PortApproved, outcome.Port)
	assert.Equal(t, true, outcome.Output["auto_approved"])
	assert.Equal(t, 1, router.calls)
}

func TestApprovalNodeSuspendsOnApprovalDecision(t *testing.T) {
	router := &stubRouter{result: &models.RoutingResult{
		Decision:   models.DecisionApproval,
		Reason:     "trust below automation threshold",
		TrustLevel: models.TrustAlertOnly,
		RiskLevel:  models.RiskHigh,
		ApprovalID: "appr-1",
	}}

	outcome, err := newNode(t, router).Execute(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"})
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomeSuspended, outcome.Status)
	assert.Contains(t, outcome.Reason, "appr-1")
}

func TestApprovalNodeRejectFailsWithPolicyError(t *testing.T) {
	router := &stubRouter{result: &models.RoutingResult{
		Decision:  models.DecisionReject,
		Reason:    "critical risk never runs from proposed trust",
		RiskLevel: models.RiskCritical,
	}}

	outcome, err := newNode(t, router).Execute(context.Background(), &models.ExecutionContext{InstanceID: "inst-1"})
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomeFailed, outcome.Status)
	assert.False(t, outcome.Retryable)
	require.ErrorIs(t, outcome.Err, ErrPolicyRejected)
}

func TestApprovalNodeWakeUpRoutesOnRecordedDecision(t *testing.T) {
	router := &stubRouter{}
	node := newNode(t, router)

	ectx := &models.ExecutionContext{
		InstanceID: "inst-1",
		Metadata: map[string]any{
			DecisionKey("gate"): &DecisionVerdict{Approved: false, DecidedBy: "ops", Reason: "too risky today"},
		},
	}

	outcome, err := node.Execute(context.Background(), ectx)
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomeSuccess, outcome.Status)
	assert.Equal(t, PortRejected, outcome.Port)
	assert.Equal(t, "ops", outcome.Output["decided_by"])
	assert.Zero(t, router.calls)
}
