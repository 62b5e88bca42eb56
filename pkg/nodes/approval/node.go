// Package approval provides the human-gated approval node.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// Ports the approval node routes through.
const (
	PortApproved = "approved"
	PortRejected = "rejected"
)

// ErrPolicyRejected marks an action the decision matrix refused outright.
// Distinct from execution errors so callers can tell "the action failed"
// from "the action was not permitted to run".
var ErrPolicyRejected = errors.New("action rejected by decision policy")

// DecisionRouter is the slice of the decision router the approval node
// needs. An `approval` decision has already created the pending record when
// Route returns.
type DecisionRouter interface {
	Route(ctx context.Context, actionType, entityID, instanceID, nodeID string) (*models.RoutingResult, error)
}

// ApprovalNode suspends until a human decision, consulting the trust/risk
// decision router first: an `auto` resolution short-circuits the suspension
// with a logged rationale and no pending-approval record.
type ApprovalNode struct {
	id         string
	actionType string
	entityID   string
	router     DecisionRouter
}

func NewApprovalNode(id string, config map[string]any, router DecisionRouter) (*ApprovalNode, error) {
	actionType, ok := config["action_type"].(string)
	if !ok || actionType == "" {
		return nil, errors.New("missing required field 'action_type'")
	}

	entityID, _ := config["entity_id"].(string)

	return &ApprovalNode{
		id:         id,
		actionType: actionType,
		entityID:   entityID,
		router:     router,
	}, nil
}

func (n *ApprovalNode) ID() string            { return n.id }
func (n *ApprovalNode) Type() models.NodeType { return models.NodeTypeApproval }

func (n *ApprovalNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	// A recorded human decision means this execution is the wake-up pass.
	if verdict, ok := decisionVerdict(ectx, n.id); ok {
		port := PortRejected
		if verdict.Approved {
			port = PortApproved
		}

		return protocol.Success(map[string]any{
			"action_type": n.actionType,
			"approved":    verdict.Approved,
			"decided_by":  verdict.DecidedBy,
			"reason":      verdict.Reason,
		}, port), nil
	}

	entityID := n.entityID
	if entityID == "" {
		entityID = ectx.DefinitionID
	}

	routing, err := n.router.Route(ctx, n.actionType, entityID, ectx.InstanceID, n.id)
	if err != nil {
		return protocol.Fail(fmt.Errorf("decision routing failed: %w", err), true), nil
	}

	switch routing.Decision {
	case models.DecisionAuto:
		return protocol.Success(map[string]any{
			"action_type":   n.actionType,
			"approved":      true,
			"auto_approved": true,
			"trust_level":   int(routing.TrustLevel),
			"risk_level":    string(routing.RiskLevel),
			"reason":        routing.Reason,
		}, PortApproved), nil
	case models.DecisionReject:
		return protocol.Fail(
			fmt.Errorf("%w: %s (trust=%s risk=%s)",
				ErrPolicyRejected, routing.Reason, routing.TrustLevel.Name(), routing.RiskLevel),
			false,
		), nil
	default:
		return protocol.Suspend(fmt.Sprintf(
			"awaiting approval %s for action '%s' (trust=%s risk=%s)",
			routing.ApprovalID, n.actionType, routing.TrustLevel.Name(), routing.RiskLevel,
		)), nil
	}
}

// DecisionVerdict is the human decision recorded by the orchestrator before
// waking a suspended approval node.
type DecisionVerdict struct {
	Approved  bool
	DecidedBy string
	Reason    string
}

// DecisionKey names the metadata slot carrying the recorded human decision.
func DecisionKey(nodeID string) string { return "decision:" + nodeID }

func decisionVerdict(ectx *models.ExecutionContext, nodeID string) (*DecisionVerdict, bool) {
	raw, ok := ectx.Metadata[DecisionKey(nodeID)]
	if !ok {
		return nil, false
	}

	verdict, ok := raw.(*DecisionVerdict)
	if !ok {
		return nil, false
	}

	return verdict, true
}
