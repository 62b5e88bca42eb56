// Package judgment provides the node that consults the external judgment
// policy collaborator.
package judgment

import (
	"context"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// JudgmentNode invokes the judgment policy and records verdict, confidence
// and evidence refs in the instance context. The policy is opaque: only
// transport failures retry, semantic disagreement is a recorded verdict.
type JudgmentNode struct {
	id         string
	policyMode string
	policy     protocol.JudgmentPolicy
}

func NewJudgmentNode(id string, config map[string]any, policy protocol.JudgmentPolicy) (*JudgmentNode, error) {
	policyMode, _ := config["policy_mode"].(string)
	if policyMode == "" {
		policyMode = "default"
	}

	return &JudgmentNode{
		id:         id,
		policyMode: policyMode,
		policy:     policy,
	}, nil
}

func (n *JudgmentNode) ID() string            { return n.id }
func (n *JudgmentNode) Type() models.NodeType { return models.NodeTypeJudgment }

func (n *JudgmentNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	workflowContext := map[string]any{
		"instance_id":   ectx.InstanceID,
		"definition_id": ectx.DefinitionID,
		"trigger_data":  ectx.TriggerData,
		"variables":     ectx.Variables,
		"outputs":       outputData(ectx),
	}

	verdict, err := n.policy.Judge(ctx, workflowContext, n.policyMode)
	if err != nil {
		return protocol.Fail(fmt.Errorf("judgment call failed: %w", err), true), nil
	}

	return protocol.Success(map[string]any{
		"verdict":       verdict.Verdict,
		"confidence":    verdict.Confidence,
		"evidence_refs": verdict.EvidenceRefs,
		"details":       verdict.Details,
		"policy_mode":   n.policyMode,
	}, verdict.Verdict), nil
}

func outputData(ectx *models.ExecutionContext) map[string]any {
	outputs := make(map[string]any, len(ectx.NodeOutputs))
	for nodeID, out := range ectx.NodeOutputs {
		outputs[nodeID] = out.Data
	}

	return outputs
}
