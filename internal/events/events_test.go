package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	callCount := 0
	bus.Subscribe(EventReportSubmitted, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventReportSubmitted, ReportEventPayload{ReportID: "r1", Status: "PENDING"})
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventReportSubmitted, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded ReportEventPayload
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, "r1", decoded.ReportID)
}

func TestEventBusAllEvents(t *testing.T) {
	bus := NewEventBus()
	var specific, all int

	bus.Subscribe(EventPurchaseCreated, func(_ *Event) error { specific++; return nil })
	bus.Subscribe(AllEvents, func(_ *Event) error { all++; return nil })

	bus.Publish(&Event{Type: EventPurchaseCreated})
	bus.Publish(&Event{Type: EventTaskPublished})

	assert.Equal(t, 1, specific)
	assert.Equal(t, 2, all)
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NotPanics(t, func() {
		bus.Publish(&Event{Type: "nobody"})
	})
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventTaskPublished, nil))
}

func TestPublishJSONMarshalError(t *testing.T) {
	bus := NewEventBus()
	err := bus.PublishJSON(EventTaskPublished, map[string]interface{}{"bad": make(chan int)})
	assert.Error(t, err)
}
