package trigger

import (
	"context"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

type TriggerNodeFactory struct {
	registrar protocol.ScheduleRegistrar
}

func NewTriggerNodeFactory(registrar protocol.ScheduleRegistrar) protocol.NodeFactory {
	return &TriggerNodeFactory{registrar: registrar}
}

func (f *TriggerNodeFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewTriggerNode(id, config, f.registrar)
}

func (f *TriggerNodeFactory) ID() models.NodeType {
	return models.NodeTypeTrigger
}

func (f *TriggerNodeFactory) Name() string {
	return "Trigger Registration"
}

func (f *TriggerNodeFactory) Description() string {
	return "Registers or updates a schedule or event subscription"
}

func (f *TriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"schedule": map[string]any{
				"type":        "string",
				"description": "Cron expression, e.g. '0 9 * * 1-5' or '@hourly'",
			},
			"event_type": map[string]any{
				"type":        "string",
				"description": "Event type to subscribe to, mutually exclusive with schedule",
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "Payload delivered when the schedule or subscription fires",
			},
		},
	}
}
