package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventBookingAutoEnded, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventBookingAutoEnded, BookingEventPayload{BookingID: 12, ChangedBy: "reconciler"})
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventBookingAutoEnded, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	payload, err := received.Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(12), payload.BookingID)
	assert.Equal(t, "reconciler", payload.ChangedBy)
}

func TestEventBusWildcardAndErrors(t *testing.T) {
	bus := NewEventBus()

	var seen []string
	bus.Subscribe(AllEvents, func(event *Event) error {
		seen = append(seen, event.Type)
		return nil
	})
	bus.Subscribe(EventBookingStarted, func(*Event) error {
		return errors.New("handler failed")
	})

	err := bus.PublishJSON(EventBookingStarted, BookingEventPayload{BookingID: 1})
	assert.EqualError(t, err, "handler failed")

	require.NoError(t, bus.PublishJSON(EventOrderCreated, BookingEventPayload{BookingID: 1}))
	assert.Equal(t, []string{EventBookingStarted, EventOrderCreated}, seen)
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventBookingEnded, BookingEventPayload{}))
}

func TestPublishJSONMarshalError(t *testing.T) {
	bus := NewEventBus()
	assert.Error(t, bus.PublishJSON(EventBookingEnded, make(chan int)))
}
