// Package trigger provides the schedule and subscription registration node.
package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/protocol"
)

// TriggerNode registers or updates a schedule or an event subscription. It
// is side-effecting; the decision router treats trigger registration as an
// elevated-trust action.
type TriggerNode struct {
	id        string
	schedule  string
	eventType string
	payload   map[string]any
	registrar protocol.ScheduleRegistrar
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func NewTriggerNode(id string, config map[string]any, registrar protocol.ScheduleRegistrar) (*TriggerNode, error) {
	schedule, _ := config["schedule"].(string)
	eventType, _ := config["event_type"].(string)

	if schedule == "" && eventType == "" {
		return nil, errors.New("either 'schedule' or 'event_type' is required")
	}

	if schedule != "" && eventType != "" {
		return nil, errors.New("'schedule' and 'event_type' are mutually exclusive")
	}

	if schedule != "" {
		if _, err := cronParser.Parse(schedule); err != nil {
			return nil, fmt.Errorf("invalid cron expression '%s': %w", schedule, err)
		}
	}

	payload, _ := config["payload"].(map[string]any)

	return &TriggerNode{
		id:        id,
		schedule:  schedule,
		eventType: eventType,
		payload:   payload,
		registrar: registrar,
	}, nil
}

func (n *TriggerNode) ID() string            { return n.id }
func (n *TriggerNode) Type() models.NodeType { return models.NodeTypeTrigger }

func (n *TriggerNode) Execute(ctx context.Context, ectx *models.ExecutionContext) (*protocol.NodeOutcome, error) {
	registrationID := fmt.Sprintf("%s.%s", ectx.DefinitionID, n.id)

	if n.schedule != "" {
		err := n.registrar.RegisterSchedule(ctx, registrationID, n.schedule, n.payload)
		if err != nil {
			return protocol.Fail(fmt.Errorf("schedule registration failed: %w", err), true), nil
		}

		return protocol.Success(map[string]any{
			"registration_id": registrationID,
			"schedule":        n.schedule,
		}, ""), nil
	}

	err := n.registrar.RegisterSubscription(ctx, registrationID, n.eventType, n.payload)
	if err != nil {
		return protocol.Fail(fmt.Errorf("subscription registration failed: %w", err), true), nil
	}

	return protocol.Success(map[string]any{
		"registration_id": registrationID,
		"event_type":      n.eventType,
	}, ""), nil
}
