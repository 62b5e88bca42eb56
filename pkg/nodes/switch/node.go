// Package switchnode provides the multi-way branching node.
package switchnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/template"
)

// SwitchNode evaluates case conditions in declared order and routes to the
// port of the first condition that holds. No match falls back to the
// declared default port, or fails non-retryably when none is declared.
type SwitchNode struct {
	id          string
	cases       []SwitchCase
	defaultPort string
}

// SwitchCase is one condition in declaration order.
type SwitchCase struct {
	When string `json:"when"`
	Port string `json:"port"`
}

func NewSwitchNode(id string, config map[string]any) (*SwitchNode, error) {
	casesConfig, ok := config["cases"].([]any)
	if !ok || len(casesConfig) == 0 {
		return nil, errors.New("missing required field 'cases'")
	}

	cases := make([]SwitchCase, 0, len(casesConfig))

	for i, caseAny := range casesConfig {
		caseMap, ok := caseAny.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("case %d must be an object", i)
		}

		when, ok := caseMap["when"].(string)
		if !ok || when == "" {
			return nil, fmt.Errorf("case %d missing 'when'", i)
		}

		port, ok := caseMap["port"].(string)
		if !ok || port == "" {
			return nil, fmt.Errorf("case %d missing 'port'", i)
		}

		cases = append(cases, SwitchCase{When: when, Port: port})
	}

	defaultPort, _ := config["default_port"].(string)

	return &SwitchNode{
		id:          id,
		cases:       cases,
		defaultPort: defaultPort,
	}, nil
}

func (n *SwitchNode) ID() string            { return n.id }
func (n *SwitchNode) Type() models.NodeType { return models.NodeTypeSwitch }

func (n *SwitchNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	for i, c := range n.cases {
		result, err := template.RenderWithContext(c.When, ectx)
		if err != nil {
			return protocol.Fail(fmt.Errorf("case %d evaluation failed: %w", i, err), false), nil
		}

		if truthy(result) {
			return protocol.Success(map[string]any{
				"matched_case": i,
				"condition":    c.When,
				"port":         c.Port,
			}, c.Port), nil
		}
	}

	if n.defaultPort != "" {
		return protocol.Success(map[string]any{
			"matched_case": -1,
			"port":         n.defaultPort,
			"no_match":     true,
		}, n.defaultPort), nil
	}

	return protocol.Fail(errors.New("no case matched and no default port declared"), false), nil
}

func truthy(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return value == "true"
	case float64:
		return value != 0
	case int:
		return value != 0
	default:
		return false
	}
}
