package switchnode

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type SwitchNodeFactory struct{}

func NewSwitchNodeFactory() protocol.NodeFactory {
	return &SwitchNodeFactory{}
}

func (f *SwitchNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewSwitchNode(id, config)
}

func (f *SwitchNodeFactory) ID() models.NodeType {
	return models.NodeTypeSwitch
}

func (f *SwitchNodeFactory) Name() string {
	return "Switch"
}

func (f *SwitchNodeFactory) Description() string {
	return "Routes execution to the port of the first case condition that holds"
}

func (f *SwitchNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cases": map[string]any{
				"type":        "array",
				"description": "Conditions evaluated in declared order; first true condition wins",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"when": map[string]any{
							"type":        "string",
							"description": "Boolean template expression",
							"examples": []string{
								`{{ gt (index .outputs.fetch "value") 10.0 }}`,
								`{{ eq .vars.environment "production" }}`,
							},
						},
						"port": map[string]any{
							"type":        "string",
							"description": "Output port taken when the condition holds",
						},
					},
					"required": []string{"when", "port"},
				},
			},
			"default_port": map[string]any{
				"type":        "string",
				"description": "Port taken when no case matches. Absent means no match is a failure.",
			},
		},
		"required": []string{"cases"},
	}
}
