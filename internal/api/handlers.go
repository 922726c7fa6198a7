package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"xstation/internal/database"
	"xstation/internal/models"
	"xstation/internal/report"
	"xstation/internal/service"
	"xstation/internal/timer"
	"xstation/internal/xstation"
)

const (
	defaultJournalWindow = 24 * time.Hour
	maxJournalLimit      = 1000
	reportRowLimit       = 10000
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleTimers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"now":    s.deps.Timers.Now(),
		"timers": s.deps.Timers.Snapshot(),
	})
}

func (s *HTTPServer) handleDurations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"open_ended": models.OpenEndedDuration,
		"minutes":    timer.DurationOptions(),
	})
}

func (s *HTTPServer) handleStartBooking(w http.ResponseWriter, r *http.Request) {
	var body service.StartBookingRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.RoomID <= 0 {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}

	booking, err := s.deps.FrontDesk.StartBooking(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleEndBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.FrontDesk.EndBooking(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking_id": id, "status": models.StatusCompleted})
}

func (s *HTTPServer) handleSwitchRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		RoomID int64 `json:"room_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.RoomID <= 0 {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}

	booking, err := s.deps.FrontDesk.SwitchRoom(r.Context(), id, body.RoomID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Discount float64 `json:"discount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	booking, err := s.deps.FrontDesk.UpdateDiscount(r.Context(), id, body.Discount)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	orders, err := s.deps.FrontDesk.ListOrders(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type orderBody struct {
	Items []models.OrderItem `json:"items"`
}

func (s *HTTPServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.createOrder(w, r, id)
}

func (s *HTTPServer) handleCreateWalkInOrder(w http.ResponseWriter, r *http.Request) {
	s.createOrder(w, r, 0)
}

func (s *HTTPServer) createOrder(w http.ResponseWriter, r *http.Request, bookingID int64) {
	var body orderBody
	if !decodeBody(w, r, &body) {
		return
	}
	order, err := s.deps.FrontDesk.CreateOrder(r.Context(), bookingID, body.Items)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusNotFound, "catalog is disabled")
		return
	}
	rooms, err := s.deps.Catalog.ListRooms(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": orEmpty(rooms)})
}

func (s *HTTPServer) handleCustomers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusNotFound, "catalog is disabled")
		return
	}
	customers, err := s.deps.Catalog.ListCustomers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": orEmpty(customers)})
}

func (s *HTTPServer) handleCafeteriaItems(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusNotFound, "catalog is disabled")
		return
	}
	items, err := s.deps.Catalog.ListCafeteriaItems(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orEmpty(items)})
}

func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func (s *HTTPServer) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "journal is disabled")
		return
	}

	now := s.deps.Clock.Now()
	since, err := parseTimeParam(r, "since", now.Add(-defaultJournalWindow))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxJournalLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxJournalLimit))
			return
		}
		limit = n
	}

	entries, err := s.deps.Journal.ListAutoEnds(r.Context(), since, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list auto-end journal")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleJournalEntry(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "journal is disabled")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entry, err := s.deps.Journal.GetAutoEnd(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "journal entry not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("journal_id", id).Msg("get auto-end journal entry")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) handleJournalReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "journal is disabled")
		return
	}

	now := s.deps.Clock.Now()
	from, err := parseTimeParam(r, "from", now.Add(-defaultJournalWindow))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseTimeParam(r, "to", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	entries, err := s.deps.Journal.ListAutoEndsBetween(r.Context(), from, to, reportRowLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list auto-end journal")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(entries) == reportRowLimit {
		s.logger.Warn().Time("from", from).Time("to", to).Int("limit", reportRowLimit).Msg("auto-end report truncated")
	}

	var buf bytes.Buffer
	if err := report.WriteJournal(&buf, entries, from, to, s.deps.Location); err != nil {
		s.logger.Error().Err(err).Msg("render auto-end report")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	fileName := fmt.Sprintf("auto_end_%s_to_%s.xlsx", from.In(s.deps.Location).Format("2006-01-02"), to.In(s.deps.Location).Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// writeServiceError maps front-desk and backend errors to HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *xstation.APIError
	switch {
	case errors.Is(err, service.ErrSubmitting):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrInvalidDiscount),
		errors.Is(err, service.ErrEmptyOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Message)
	case errors.Is(err, xstation.ErrNetwork):
		writeError(w, http.StatusServiceUnavailable, xstation.ErrNetwork.Error())
	default:
		s.logger.Error().Err(err).Msg("front desk request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; expected RFC3339", name)
	}
	return t, nil
}
