package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"xstation/internal/events"
	"xstation/internal/models"
	"xstation/internal/timer"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func textIs(chatID int64, want string) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == chatID && msg.Text == want
	})
}

func newNotifier(sender *mockTelegramSender) (*TelegramNotifier, *events.EventBus) {
	n := NewTelegramNotifier(sender, []int64{100, 200}, nil)
	n.location = time.UTC
	bus := events.NewEventBus()
	n.Subscribe(bus)
	return n, bus
}

func TestTelegramNotifier_Broadcast(t *testing.T) {
	sender := new(mockTelegramSender)
	n, bus := newNotifier(sender)

	want := "⏰ Бронь #5 завершена автоматически в 19:30"
	sent := make(chan struct{}, 2)
	signal := func(mock.Arguments) { sent <- struct{}{} }
	sender.On("Send", textIs(100, want)).Run(signal).Return(tgbotapi.Message{}, nil).Once()
	sender.On("Send", textIs(200, want)).Run(signal).Return(tgbotapi.Message{}, errors.New("blocked")).Once()

	end := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	require.NoError(t, bus.PublishJSON(events.EventBookingAutoEnded, events.BookingEventPayload{BookingID: 5, EndTime: &end}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-sent:
		case <-time.After(time.Second):
			t.Fatal("notification not sent")
		}
	}
	cancel()
	<-done
	sender.AssertExpectations(t)
}

func TestTelegramNotifier_Format(t *testing.T) {
	n := NewTelegramNotifier(nil, nil, nil)

	tests := []struct {
		name      string
		eventType string
		payload   events.BookingEventPayload
		want      string
	}{
		{
			name:      "broken timer",
			eventType: events.EventBookingTimerBroken,
			payload:   events.BookingEventPayload{BookingID: 9},
			want:      "❗ Таймер брони #9 истёк, но время окончания неизвестно. Проверьте бронь вручную.",
		},
		{
			name:      "action failed",
			eventType: events.EventActionFailed,
			payload:   events.BookingEventPayload{BookingID: 3, Action: "end_booking", Error: "network error"},
			want:      "❌ Ошибка операции end_booking (бронь #3): network error",
		},
		{
			name:      "walk-in order failed",
			eventType: events.EventActionFailed,
			payload:   events.BookingEventPayload{Action: "create_order", Error: "out of stock"},
			want:      "❌ Ошибка операции create_order: out of stock",
		},
		{
			name:      "refresh restored",
			eventType: events.EventBookingsRefreshRestored,
			want:      "✅ Связь с сервером X-Station восстановлена",
		},
		{
			name:      "not forwarded",
			eventType: events.EventBookingStarted,
			payload:   events.BookingEventPayload{BookingID: 1},
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.format(tt.eventType, tt.payload))
		})
	}
}

func TestTelegramNotifier_QueueFull(t *testing.T) {
	sender := new(mockTelegramSender)
	_, bus := newNotifier(sender)

	for i := 0; i < queueSize+5; i++ {
		assert.NoError(t, bus.PublishJSON(events.EventBookingsRefreshFailed, events.BookingEventPayload{Error: "timeout"}))
	}
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

type flakyBackend struct {
	mu   sync.Mutex
	down bool
}

func (b *flakyBackend) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *flakyBackend) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errors.New("connection refused")
	}
	return nil, nil
}

func (b *flakyBackend) EndBooking(ctx context.Context, id int64, endTime *time.Time) error {
	return nil
}

func TestTelegramNotifier_BackendOutageNotifiesOnce(t *testing.T) {
	sender := new(mockTelegramSender)
	n, bus := newNotifier(sender)

	backend := &flakyBackend{down: true}
	rec := timer.NewReconciler(backend, timer.NewStore(nil, nil), bus, nil, nil, timer.Options{}, nil)
	ctx := context.Background()

	// минута опроса раз в 2 секунды
	for i := 0; i < 30; i++ {
		assert.Error(t, rec.Refresh(ctx))
	}
	require.Len(t, n.queue, 1)
	assert.Equal(t, "📡 Нет связи с сервером X-Station: connection refused", <-n.queue)

	backend.setDown(false)
	require.NoError(t, rec.Refresh(ctx))
	require.NoError(t, rec.Refresh(ctx))
	require.Len(t, n.queue, 1)
	assert.Equal(t, "✅ Связь с сервером X-Station восстановлена", <-n.queue)

	backend.setDown(true)
	assert.Error(t, rec.Refresh(ctx))
	assert.Len(t, n.queue, 1)
	sender.AssertNotCalled(t, "Send", mock.Anything)
}
