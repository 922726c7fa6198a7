package domain

import (
	"context"
	"errors"
	"time"

	"xstation/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingAPI is the slice of the X-Station backend the reconciler depends on.
type BookingAPI interface {
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)
	EndBooking(ctx context.Context, id int64, endTime *time.Time) error
}

// FrontDeskAPI is the full set of backend calls used by front-desk mutations.
type FrontDeskAPI interface {
	BookingAPI
	CreateBooking(ctx context.Context, req models.NewBookingRequest) (*models.Booking, error)
	SwitchRoom(ctx context.Context, id int64, roomID int64) (*models.Booking, error)
	UpdateDiscount(ctx context.Context, id int64, discount float64) (*models.Booking, error)
	ListOrders(ctx context.Context, bookingID int64) ([]models.Order, error)
	CreateOrder(ctx context.Context, req models.NewOrderRequest) (*models.Order, error)
}

// TimerPersistence loads and saves the full client timer map at once.
type TimerPersistence interface {
	Load(ctx context.Context) (map[int64]models.ClientTimerEntry, error)
	Save(ctx context.Context, entries map[int64]models.ClientTimerEntry) error
}

// TimerStore is the client fallback timer store used by the reconciler.
type TimerStore interface {
	Get(id int64) (models.ClientTimerEntry, bool)
	Set(ctx context.Context, id int64, entry models.ClientTimerEntry) error
	Delete(ctx context.Context, id int64) error
	List() map[int64]models.ClientTimerEntry
}

// Refresher triggers an out-of-band reload of active bookings.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Journal interface {
	RecordAutoEnd(ctx context.Context, entry *models.JournalEntry) error
	ListAutoEnds(ctx context.Context, since time.Time, limit int) ([]models.JournalEntry, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ErrCorruptTimers is returned by TimerPersistence.Load when the stored
// value cannot be decoded. Callers start from an empty map.
var ErrCorruptTimers = errors.New("client timers data is corrupt")
