package models

import "time"

type Booking struct {
	ID         int64      `json:"id"`
	RoomID     int64      `json:"room_id"`
	RoomName   string     `json:"room_name,omitempty"`
	CustomerID *int64     `json:"customer_id"` // nil for walk-in guests
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"` // nil while open-ended
	Status     string     `json:"status"`      // active, completed, pending, cancelled
	Discount   float64    `json:"discount"`
	Orders     []Order    `json:"orders,omitempty"`
}

// IsGuest reports whether the booking has no registered customer.
func (b *Booking) IsGuest() bool {
	return b.CustomerID == nil || *b.CustomerID == GuestCustomerID
}

// IsActive reports whether the booking is still in progress.
func (b *Booking) IsActive() bool {
	return b.Status == StatusActive
}

// NewBookingRequest is the payload for creating a booking on the backend.
type NewBookingRequest struct {
	RoomID     int64      `json:"room_id"`
	CustomerID *int64     `json:"customer_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
