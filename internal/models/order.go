package models

import "time"

type Order struct {
	ID        int64       `json:"id"`
	BookingID *int64      `json:"booking_id"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
}

type OrderItem struct {
	ItemID   int64   `json:"item_id"`
	Name     string  `json:"name,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

type NewOrderRequest struct {
	BookingID *int64      `json:"booking_id"`
	Items     []OrderItem `json:"items"`
}
