package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/pkg/channels/gochannel"
	"github.com/stepflow/stepflow/pkg/eventbus"
	"github.com/stepflow/stepflow/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	publisher, subscriber, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(publisher, subscriber)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.ExecutionRequested, 1)

	err := bus.Handle(events.ExecutionRequestedEvent, func(_ context.Context, event any) error {
		requested, ok := event.(*events.ExecutionRequested)
		require.True(t, ok)

		received <- requested

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	requested := events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, "comp-1"),
		ExecutionID: "exec-1",
		AccountID:   "acct-1",
		Input:       map[string]any{"order_id": "o-1"},
	}
	require.NoError(t, bus.Publish(t.Context(), "exec-1", requested))

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, "comp-1", event.CompositionID)
		assert.Equal(t, "o-1", event.Input["order_id"])
		assert.Equal(t, events.ExecutionRequestedEvent, event.GetType())
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.ExecutionCompleted, 1)

	err := bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ExecutionCompleted)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	// No handler registered for this type; it must not block the stream.
	started := events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, "comp-1"),
		ExecutionID: "exec-1",
	}
	require.NoError(t, bus.Publish(t.Context(), "exec-1", started))

	completed := events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, "comp-1"),
		ExecutionID: "exec-1",
	}
	require.NoError(t, bus.Publish(t.Context(), "exec-1", completed))

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestNewBaseEvent(t *testing.T) {
	event := events.NewBaseEvent(events.ExecutionStartedEvent, "comp-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, events.ExecutionStartedEvent, event.Type)
	assert.Equal(t, "comp-1", event.CompositionID)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Metadata)
}
