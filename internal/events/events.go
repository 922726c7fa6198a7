package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	EventBookingStarted          = "booking_started"
	EventBookingEnded            = "booking_ended"
	EventBookingAutoEnded        = "booking_auto_ended"
	EventBookingAutoEndFailed    = "booking_auto_end_failed"
	EventBookingTimerBroken      = "booking_timer_inconsistent"
	EventBookingsRefreshFailed   = "bookings_refresh_failed"
	EventBookingsRefreshRestored = "bookings_refresh_restored"
	EventBookingRoomSwitched     = "booking_room_switched"
	EventBookingDiscountUpdated  = "booking_discount_updated"
	EventOrderCreated            = "order_created"
	EventActionFailed            = "front_desk_action_failed"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// BookingEventPayload is the booking snapshot carried by booking events.
type BookingEventPayload struct {
	BookingID  int64      `json:"booking_id"`
	RoomID     int64      `json:"room_id,omitempty"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Discount   float64    `json:"discount,omitempty"`
	OrderID    int64      `json:"order_id,omitempty"`
	Action     string     `json:"action,omitempty"`
	Error      string     `json:"error,omitempty"`
	ChangedBy  string     `json:"changed_by,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the event payload into a booking payload.
func (e *Event) Decode() (BookingEventPayload, error) {
	var p BookingEventPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the handlers of the event type, then the wildcard handlers.
// Every handler runs even if an earlier one fails; errors are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
