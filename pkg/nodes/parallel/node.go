// Package parallel provides the branch fan-out node. The node itself only
// resolves branch names and the join policy; the orchestrator owns the
// concurrent execution and the join.
package parallel

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// Join policies for parallel branches.
const (
	JoinFailFast = "fail_fast"
	JoinWaitAll  = "wait_all"
)

// ParallelNode declares named branches and how their outcomes join.
type ParallelNode struct {
	id       string
	branches []string
	join     string
}

func NewParallelNode(id string, config map[string]any) (*ParallelNode, error) {
	branchesConfig, ok := config["branches"].([]any)
	if !ok || len(branchesConfig) == 0 {
		return nil, errors.New("missing required field 'branches'")
	}

	branches := make([]string, 0, len(branchesConfig))
	seen := make(map[string]bool, len(branchesConfig))

	for i, branchAny := range branchesConfig {
		branch, ok := branchAny.(string)
		if !ok || branch == "" {
			return nil, fmt.Errorf("branch %d must be a non-empty string", i)
		}

		if seen[branch] {
			return nil, fmt.Errorf("duplicate branch name '%s'", branch)
		}

		seen[branch] = true
		branches = append(branches, branch)
	}

	join, _ := config["join"].(string)
	if join == "" {
		join = JoinWaitAll
	}

	if join != JoinFailFast && join != JoinWaitAll {
		return nil, fmt.Errorf("unknown join policy '%s'", join)
	}

	return &ParallelNode{id: id, branches: branches, join: join}, nil
}

func (n *ParallelNode) ID() string            { return n.id }
func (n *ParallelNode) Type() models.NodeType { return models.NodeTypeParallel }

// Branches returns the declared branch names in order.
func (n *ParallelNode) Branches() []string { return n.branches }

// Join returns the join policy.
func (n *ParallelNode) Join() string { return n.join }

func (n *ParallelNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	branches := make([]any, len(n.branches))
	for i, b := range n.branches {
		branches[i] = b
	}

	return protocol.Success(map[string]any{
		"branches": branches,
		"join":     n.join,
	}, ""), nil
}
