package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"xstation/internal/config"
	"xstation/internal/models"
	"xstation/internal/service"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// TimerReader exposes the reconciler state.
type TimerReader interface {
	Snapshot() []models.TimerView
	Now() time.Time
}

// FrontDesk is the mutation surface served under /api/v1/bookings.
type FrontDesk interface {
	StartBooking(ctx context.Context, req service.StartBookingRequest) (*models.Booking, error)
	EndBooking(ctx context.Context, id int64) error
	SwitchRoom(ctx context.Context, id, roomID int64) (*models.Booking, error)
	UpdateDiscount(ctx context.Context, id int64, discount float64) (*models.Booking, error)
	CreateOrder(ctx context.Context, bookingID int64, items []models.OrderItem) (*models.Order, error)
	ListOrders(ctx context.Context, bookingID int64) ([]models.Order, error)
}

// JournalReader reads the auto-end journal.
type JournalReader interface {
	ListAutoEnds(ctx context.Context, since time.Time, limit int) ([]models.JournalEntry, error)
	ListAutoEndsBetween(ctx context.Context, from, to time.Time, limit int) ([]models.JournalEntry, error)
	GetAutoEnd(ctx context.Context, id int64) (*models.JournalEntry, error)
}

// Catalog lists the reference data the front desk picks from.
type Catalog interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	ListCafeteriaItems(ctx context.Context) ([]models.CafeteriaItem, error)
}

// Deps are the components the HTTP API serves. Journal and Catalog may be
// nil; their routes then answer 404.
type Deps struct {
	Timers    TimerReader
	FrontDesk FrontDesk
	Journal   JournalReader
	Catalog   Catalog
	Clock     clockwork.Clock
	Location  *time.Location
}

// HTTPServer exposes timers, front-desk mutations and the journal over HTTP.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/timers", srv.handleTimers)
	mux.HandleFunc("GET /api/v1/durations", srv.handleDurations)
	mux.HandleFunc("POST /api/v1/bookings", srv.handleStartBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/end", srv.handleEndBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/switch-room", srv.handleSwitchRoom)
	mux.HandleFunc("POST /api/v1/bookings/{id}/discount", srv.handleDiscount)
	mux.HandleFunc("GET /api/v1/bookings/{id}/orders", srv.handleListOrders)
	mux.HandleFunc("POST /api/v1/bookings/{id}/orders", srv.handleCreateOrder)
	mux.HandleFunc("POST /api/v1/orders", srv.handleCreateWalkInOrder)
	mux.HandleFunc("GET /api/v1/catalog/rooms", srv.handleRooms)
	mux.HandleFunc("GET /api/v1/catalog/customers", srv.handleCustomers)
	mux.HandleFunc("GET /api/v1/catalog/cafeteria-items", srv.handleCafeteriaItems)
	mux.HandleFunc("GET /api/v1/journal", srv.handleJournal)
	mux.HandleFunc("GET /api/v1/journal/{id}", srv.handleJournalEntry)
	mux.HandleFunc("GET /api/v1/reports/auto-end.xlsx", srv.handleJournalReport)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(logger, srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
