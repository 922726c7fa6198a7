package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"xstation/internal/events"
	"xstation/internal/models"
	"xstation/internal/timer"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockAPI) EndBooking(ctx context.Context, id int64, endTime *time.Time) error {
	args := m.Called(ctx, id, endTime)
	return args.Error(0)
}

func (m *mockAPI) CreateBooking(ctx context.Context, req models.NewBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockAPI) SwitchRoom(ctx context.Context, id int64, roomID int64) (*models.Booking, error) {
	args := m.Called(ctx, id, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockAPI) UpdateDiscount(ctx context.Context, id int64, discount float64) (*models.Booking, error) {
	args := m.Called(ctx, id, discount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockAPI) ListOrders(ctx context.Context, bookingID int64) ([]models.Order, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockAPI) CreateOrder(ctx context.Context, req models.NewOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type fakeTimers struct {
	mu        sync.Mutex
	refreshes int
	forgotten []int64
}

func (f *fakeTimers) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeTimers) Forget(ctx context.Context, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, id)
}

var now = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fixture struct {
	api    *mockAPI
	store  *timer.Store
	timers *fakeTimers
	bus    *events.EventBus
	seen   []string
	svc    *FrontDeskService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:    new(mockAPI),
		store:  timer.NewStore(nil, nil),
		timers: &fakeTimers{},
		bus:    events.NewEventBus(),
	}
	f.bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		f.seen = append(f.seen, e.Type)
		return nil
	})
	f.svc = NewFrontDeskService(f.api, f.store, f.timers, f.bus, clockwork.NewFakeClockAt(now), nil)
	return f
}

func TestStartBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Timed", func(t *testing.T) {
		f := newFixture(t)
		end := now.Add(90 * time.Minute)
		customer := int64(12)
		f.api.On("CreateBooking", ctx, models.NewBookingRequest{
			RoomID: 3, CustomerID: &customer, StartedAt: now, FinishedAt: &end,
		}).Return(&models.Booking{ID: 40, RoomID: 3, Status: models.StatusActive}, nil).Once()

		b, err := f.svc.StartBooking(ctx, StartBookingRequest{RoomID: 3, CustomerID: &customer, DurationMinutes: 90})
		require.NoError(t, err)
		assert.Equal(t, int64(40), b.ID)

		entry, ok := f.store.Get(40)
		require.True(t, ok)
		assert.Equal(t, end.UnixMilli(), entry.EndTime)
		assert.Equal(t, 5400, entry.TotalSeconds)
		assert.Equal(t, []string{events.EventBookingStarted}, f.seen)
		assert.Equal(t, 1, f.timers.refreshes)
		f.api.AssertExpectations(t)
	})

	t.Run("OpenEndedGuest", func(t *testing.T) {
		f := newFixture(t)
		guest := int64(models.GuestCustomerID)
		f.api.On("CreateBooking", ctx, models.NewBookingRequest{RoomID: 1, StartedAt: now}).
			Return(&models.Booking{ID: 41}, nil).Once()

		_, err := f.svc.StartBooking(ctx, StartBookingRequest{RoomID: 1, CustomerID: &guest})
		require.NoError(t, err)

		_, ok := f.store.Get(41)
		assert.False(t, ok)
		f.api.AssertExpectations(t)
	})

	t.Run("InvalidDuration", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.StartBooking(ctx, StartBookingRequest{RoomID: 1, DurationMinutes: 15})
		assert.ErrorIs(t, err, ErrInvalidDuration)
		f.api.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("BackendFailure", func(t *testing.T) {
		f := newFixture(t)
		f.api.On("CreateBooking", ctx, mock.Anything).Return(nil, errors.New("room is busy")).Once()

		_, err := f.svc.StartBooking(ctx, StartBookingRequest{RoomID: 1, DurationMinutes: 30})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "room is busy")
		assert.Empty(t, f.store.List())
		assert.Equal(t, []string{events.EventActionFailed}, f.seen)
		assert.Zero(t, f.timers.refreshes)
	})
}

func TestEndBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.api.On("EndBooking", ctx, int64(7), (*time.Time)(nil)).Return(nil).Once()

	require.NoError(t, f.svc.EndBooking(ctx, 7))
	assert.Equal(t, []int64{7}, f.timers.forgotten)
	assert.Equal(t, []string{events.EventBookingEnded}, f.seen)
	assert.False(t, f.svc.Submitting(7))
}

func TestSubmittingFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.On("EndBooking", ctx, int64(8), (*time.Time)(nil)).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil).Once()

	errCh := make(chan error, 1)
	go func() { errCh <- f.svc.EndBooking(ctx, 8) }()
	<-entered

	assert.True(t, f.svc.Submitting(8))
	assert.ErrorIs(t, f.svc.EndBooking(ctx, 8), ErrSubmitting)
	_, err := f.svc.SwitchRoom(ctx, 8, 2)
	assert.ErrorIs(t, err, ErrSubmitting)

	close(release)
	require.NoError(t, <-errCh)
	assert.False(t, f.svc.Submitting(8))
}

func TestFlagClearsOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.api.On("SwitchRoom", ctx, int64(9), int64(4)).Return(nil, errors.New("fail")).Once()
	f.api.On("SwitchRoom", ctx, int64(9), int64(4)).Return(&models.Booking{ID: 9, RoomID: 4}, nil).Once()

	_, err := f.svc.SwitchRoom(ctx, 9, 4)
	require.Error(t, err)
	assert.False(t, f.svc.Submitting(9))

	b, err := f.svc.SwitchRoom(ctx, 9, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), b.RoomID)
	assert.Equal(t, []string{events.EventActionFailed, events.EventBookingRoomSwitched}, f.seen)
}

func TestUpdateDiscount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.UpdateDiscount(ctx, 1, -5)
	assert.ErrorIs(t, err, ErrInvalidDiscount)

	f.api.On("UpdateDiscount", ctx, int64(1), 15.0).Return(&models.Booking{ID: 1, Discount: 15}, nil).Once()
	b, err := f.svc.UpdateDiscount(ctx, 1, 15)
	require.NoError(t, err)
	assert.Equal(t, 15.0, b.Discount)
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	items := []models.OrderItem{{ItemID: 5, Quantity: 2}}

	_, err := f.svc.CreateOrder(ctx, 3, nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	booking := int64(3)
	f.api.On("CreateOrder", ctx, models.NewOrderRequest{BookingID: &booking, Items: items}).
		Return(&models.Order{ID: 100, BookingID: &booking}, nil).Once()
	f.api.On("CreateOrder", ctx, models.NewOrderRequest{Items: items}).
		Return(&models.Order{ID: 101}, nil).Once()
	f.api.On("ListOrders", ctx, int64(3)).Return([]models.Order{{ID: 100}}, nil).Once()

	order, err := f.svc.CreateOrder(ctx, 3, items)
	require.NoError(t, err)
	assert.Equal(t, int64(100), order.ID)

	order, err = f.svc.CreateOrder(ctx, 0, items)
	require.NoError(t, err)
	assert.Equal(t, int64(101), order.ID)

	orders, err := f.svc.ListOrders(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	f.api.AssertExpectations(t)
}
