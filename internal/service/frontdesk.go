package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"xstation/internal/domain"
	"xstation/internal/events"
	"xstation/internal/models"
	"xstation/internal/timer"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var (
	// ErrSubmitting rejects a mutation while the same one is still in flight.
	ErrSubmitting = errors.New("request already in progress")

	ErrInvalidDuration = timer.ErrInvalidDuration
	ErrInvalidDiscount = errors.New("discount must not be negative")
	ErrEmptyOrder      = errors.New("order has no items")
)

const changedByFrontDesk = "front_desk"

// TimerControl is the part of the reconciler front-desk mutations drive.
type TimerControl interface {
	Refresh(ctx context.Context) error
	Forget(ctx context.Context, id int64)
}

// StartBookingRequest describes a new session. A nil CustomerID is a guest;
// DurationMinutes 0 starts an open-ended session.
type StartBookingRequest struct {
	RoomID          int64  `json:"room_id"`
	CustomerID      *int64 `json:"customer_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

// FrontDeskService performs staff mutations against the backend. Each one
// holds a submitting flag for its target, publishes the outcome and refreshes
// the reconciler on success.
type FrontDeskService struct {
	api      domain.FrontDeskAPI
	store    domain.TimerStore
	timers   TimerControl
	eventBus domain.EventPublisher
	clock    clockwork.Clock
	logger   *zerolog.Logger

	mu         sync.Mutex
	submitting map[string]struct{}
}

func NewFrontDeskService(
	api domain.FrontDeskAPI,
	store domain.TimerStore,
	timers TimerControl,
	eventBus domain.EventPublisher,
	clock clockwork.Clock,
	logger *zerolog.Logger,
) *FrontDeskService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FrontDeskService{
		api:        api,
		store:      store,
		timers:     timers,
		eventBus:   eventBus,
		clock:      clock,
		logger:     logger,
		submitting: make(map[string]struct{}),
	}
}

// StartBooking creates a booking starting now. Timed sessions also get a
// client fallback end time, used until the backend reports its own.
func (s *FrontDeskService) StartBooking(ctx context.Context, req StartBookingRequest) (*models.Booking, error) {
	budget, err := timer.PlanBudget(s.clock.Now(), req.DurationMinutes)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(fmt.Sprintf("room:%d", req.RoomID))
	if err != nil {
		return nil, err
	}
	defer release()

	customerID := req.CustomerID
	if customerID != nil && *customerID == models.GuestCustomerID {
		customerID = nil
	}

	booking, err := s.api.CreateBooking(ctx, models.NewBookingRequest{
		RoomID:     req.RoomID,
		CustomerID: customerID,
		StartedAt:  budget.Start,
		FinishedAt: budget.End,
	})
	if err != nil {
		return nil, s.failed(ctx, "start_booking", 0, err)
	}

	if entry, ok := budget.ClientEntry(); ok {
		if err := s.store.Set(ctx, booking.ID, entry); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("store client timer")
		}
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("room_id", req.RoomID).
		Int("duration_minutes", req.DurationMinutes).
		Bool("guest", customerID == nil).
		Msg("booking started")
	s.publish(events.EventBookingStarted, events.BookingEventPayload{
		BookingID:  booking.ID,
		RoomID:     req.RoomID,
		CustomerID: customerID,
		EndTime:    budget.End,
		ChangedBy:  changedByFrontDesk,
	})
	s.refresh(ctx)
	return booking, nil
}

// EndBooking ends a booking immediately. The reconciler is told to forget
// it so the countdown cannot fire a second end request.
func (s *FrontDeskService) EndBooking(ctx context.Context, id int64) error {
	release, err := s.acquire(bookingKey(id))
	if err != nil {
		return err
	}
	defer release()

	if err := s.api.EndBooking(ctx, id, nil); err != nil {
		return s.failed(ctx, "end_booking", id, err)
	}

	if s.timers != nil {
		s.timers.Forget(ctx, id)
	}
	s.logger.Info().Int64("booking_id", id).Msg("booking ended")
	s.publish(events.EventBookingEnded, events.BookingEventPayload{BookingID: id, ChangedBy: changedByFrontDesk})
	s.refresh(ctx)
	return nil
}

func (s *FrontDeskService) SwitchRoom(ctx context.Context, id, roomID int64) (*models.Booking, error) {
	release, err := s.acquire(bookingKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	booking, err := s.api.SwitchRoom(ctx, id, roomID)
	if err != nil {
		return nil, s.failed(ctx, "switch_room", id, err)
	}

	s.logger.Info().Int64("booking_id", id).Int64("room_id", roomID).Msg("booking room switched")
	s.publish(events.EventBookingRoomSwitched, events.BookingEventPayload{BookingID: id, RoomID: roomID, ChangedBy: changedByFrontDesk})
	s.refresh(ctx)
	return booking, nil
}

func (s *FrontDeskService) UpdateDiscount(ctx context.Context, id int64, discount float64) (*models.Booking, error) {
	if discount < 0 {
		return nil, ErrInvalidDiscount
	}

	release, err := s.acquire(bookingKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	booking, err := s.api.UpdateDiscount(ctx, id, discount)
	if err != nil {
		return nil, s.failed(ctx, "update_discount", id, err)
	}

	s.publish(events.EventBookingDiscountUpdated, events.BookingEventPayload{BookingID: id, Discount: discount, ChangedBy: changedByFrontDesk})
	s.refresh(ctx)
	return booking, nil
}

// CreateOrder places a cafeteria order, attached to a booking when bookingID
// is non-zero.
func (s *FrontDeskService) CreateOrder(ctx context.Context, bookingID int64, items []models.OrderItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	key := "order:walk-in"
	var ref *int64
	if bookingID != 0 {
		key = bookingKey(bookingID) + ":order"
		ref = &bookingID
	}
	release, err := s.acquire(key)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.api.CreateOrder(ctx, models.NewOrderRequest{BookingID: ref, Items: items})
	if err != nil {
		return nil, s.failed(ctx, "create_order", bookingID, err)
	}

	s.publish(events.EventOrderCreated, events.BookingEventPayload{BookingID: bookingID, OrderID: order.ID, ChangedBy: changedByFrontDesk})
	return order, nil
}

func (s *FrontDeskService) ListOrders(ctx context.Context, bookingID int64) ([]models.Order, error) {
	return s.api.ListOrders(ctx, bookingID)
}

// Submitting reports whether a mutation on the booking is in flight.
func (s *FrontDeskService) Submitting(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.submitting[bookingKey(id)]
	return ok
}

func (s *FrontDeskService) acquire(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.submitting[key]; busy {
		return nil, ErrSubmitting
	}
	s.submitting[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.submitting, key)
		s.mu.Unlock()
	}, nil
}

func (s *FrontDeskService) failed(ctx context.Context, action string, id int64, err error) error {
	s.logger.Error().Err(err).Str("action", action).Int64("booking_id", id).Msg("front desk action failed")
	s.publish(events.EventActionFailed, events.BookingEventPayload{
		BookingID: id,
		Action:    action,
		Error:     err.Error(),
		ChangedBy: changedByFrontDesk,
	})
	return fmt.Errorf("%s: %w", action, err)
}

func (s *FrontDeskService) refresh(ctx context.Context) {
	if s.timers == nil {
		return
	}
	if err := s.timers.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("refresh after front desk action")
	}
}

func (s *FrontDeskService) publish(eventType string, payload events.BookingEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", payload.BookingID).Msg("publish event error")
	}
}

func bookingKey(id int64) string {
	return fmt.Sprintf("booking:%d", id)
}
