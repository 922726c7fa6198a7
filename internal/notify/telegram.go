package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"xstation/internal/domain"
	"xstation/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const queueSize = 64

// staffEvents are forwarded to staff chats; everything else stays in the logs.
var staffEvents = []string{
	events.EventBookingAutoEnded,
	events.EventBookingAutoEndFailed,
	events.EventBookingTimerBroken,
	events.EventBookingsRefreshFailed,
	events.EventBookingsRefreshRestored,
	events.EventActionFailed,
}

// TelegramNotifier turns bus events into staff chat messages. Handlers only
// enqueue; a single worker does the sending so publishers never wait on
// Telegram.
type TelegramNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
	queue   chan string

	location *time.Location
}

func NewTelegramNotifier(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{
		bot:      bot,
		chatIDs:  chatIDs,
		logger:   logger,
		queue:    make(chan string, queueSize),
		location: time.Local,
	}
}

// Subscribe registers the notifier on the bus.
func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	for _, eventType := range staffEvents {
		bus.Subscribe(eventType, n.handle)
	}
}

// Run sends queued messages until ctx is done.
func (n *TelegramNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-n.queue:
			n.broadcast(text)
		}
	}
}

func (n *TelegramNotifier) handle(event *events.Event) error {
	payload, err := event.Decode()
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	text := n.format(event.Type, payload)
	if text == "" {
		return nil
	}

	select {
	case n.queue <- text:
	default:
		n.logger.Warn().Str("event_type", event.Type).Msg("notification queue full, message dropped")
	}
	return nil
}

func (n *TelegramNotifier) format(eventType string, p events.BookingEventPayload) string {
	switch eventType {
	case events.EventBookingAutoEnded:
		return fmt.Sprintf("⏰ Бронь #%d завершена автоматически%s", p.BookingID, n.at(p.EndTime))
	case events.EventBookingAutoEndFailed:
		return fmt.Sprintf("⚠️ Не удалось автоматически завершить бронь #%d%s: %s", p.BookingID, n.at(p.EndTime), p.Error)
	case events.EventBookingTimerBroken:
		return fmt.Sprintf("❗ Таймер брони #%d истёк, но время окончания неизвестно. Проверьте бронь вручную.", p.BookingID)
	case events.EventBookingsRefreshFailed:
		return fmt.Sprintf("📡 Нет связи с сервером X-Station: %s", p.Error)
	case events.EventBookingsRefreshRestored:
		return "✅ Связь с сервером X-Station восстановлена"
	case events.EventActionFailed:
		var b strings.Builder
		fmt.Fprintf(&b, "❌ Ошибка операции %s", p.Action)
		if p.BookingID != 0 {
			fmt.Fprintf(&b, " (бронь #%d)", p.BookingID)
		}
		fmt.Fprintf(&b, ": %s", p.Error)
		return b.String()
	}
	return ""
}

func (n *TelegramNotifier) at(t *time.Time) string {
	if t == nil {
		return ""
	}
	return " в " + t.In(n.location).Format("15:04")
}

func (n *TelegramNotifier) broadcast(text string) {
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send staff notification")
		}
	}
}
