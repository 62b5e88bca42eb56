package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/channels/gochannel"
	"github.com/stratumflow/stratum/pkg/events"
	"github.com/stratumflow/stratum/pkg/models"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	return NewWatermillEventBus(pub, sub)
}

func TestWatermillEventBusRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.InstanceFailed, 1)

	err := bus.Handle(events.InstanceFailedEvent, func(_ context.Context, event any) error {
		failed, ok := event.(*events.InstanceFailed)
		require.True(t, ok)
		received <- failed

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	err = bus.Publish(ctx, "inst-1", InstanceFailedFixture("inst-1"))
	require.NoError(t, err)

	select {
	case failed := <-received:
		assert.Equal(t, "inst-1", failed.InstanceID)
		assert.Equal(t, "act", failed.FailedNodeID)
		assert.True(t, failed.Compensated)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBusIgnoresUnhandledTypes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.DeploymentRolledBack, 1)

	err := bus.Handle(events.DeploymentRolledBackEvent, func(_ context.Context, event any) error {
		rollback, ok := event.(*events.DeploymentRolledBack)
		require.True(t, ok)
		received <- rollback

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this one; it is acked and dropped.
	require.NoError(t, bus.Publish(ctx, "inst-2", InstanceFailedFixture("inst-2")))

	rollback := events.DeploymentRolledBack{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.DeploymentRolledBackEvent,
			Timestamp: time.Now().UTC(),
		},
		DeploymentID: "dep-1",
		OldVersion:   "v1",
		NewVersion:   "v2",
		Automatic:    true,
		Trigger: &models.RollbackTrigger{
			DeploymentID: "dep-1",
			Condition:    "error_rate",
			NewErrorRate: 0.08,
			OldErrorRate: 0.01,
		},
	}
	require.NoError(t, bus.Publish(ctx, "dep-1", rollback))

	select {
	case got := <-received:
		assert.Equal(t, "dep-1", got.DeploymentID)
		require.NotNil(t, got.Trigger)
		assert.InDelta(t, 0.08, got.Trigger.NewErrorRate, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rollback event")
	}
}

func InstanceFailedFixture(instanceID string) events.InstanceFailed {
	return events.InstanceFailed{
		BaseEvent: events.BaseEvent{
			ID:         watermill.NewULID(),
			Type:       events.InstanceFailedEvent,
			Timestamp:  time.Now().UTC(),
			InstanceID: instanceID,
		},
		FailedNodeID: "act",
		Error:        "upstream unavailable",
		Compensated:  true,
	}
}
