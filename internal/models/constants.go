package models

const (
	StatusActive    = "active"
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// GuestCustomerID is the backend sentinel for walk-in customers.
const GuestCustomerID = 0

const (
	EndSourceServer = "server"
	EndSourceClient = "client"
)

const (
	OutcomeEnded        = "ended"
	OutcomeFailed       = "failed"
	OutcomeInconsistent = "inconsistent"
)

const (
	// DurationStepMinutes шаг выбора длительности сеанса
	DurationStepMinutes = 10

	// MinDurationMinutes минимальная длительность сеанса с таймером
	MinDurationMinutes = 10

	// MaxDurationMinutes максимальная длительность сеанса с таймером
	MaxDurationMinutes = 180

	// OpenEndedDuration означает сеанс без таймера
	OpenEndedDuration = 0

	// ClientTimersKey ключ хранилища резервных таймеров
	ClientTimersKey = "xstation_client_timers"

	// DefaultRefreshInterval период опроса активных бронирований в секундах
	DefaultRefreshInterval = 2

	// DefaultGracePeriod задержка автозавершения после старта в секундах
	DefaultGracePeriod = 2

	// CatalogCacheTTL время жизни кэша справочников в секундах
	CatalogCacheTTL = 5 * 60
)
