package models

import "time"

// ClientTimerEntry is the locally computed end time of a timed booking whose
// end time the backend has not reported yet.
type ClientTimerEntry struct {
	EndTime      int64 `json:"endTime"` // epoch milliseconds
	TotalSeconds int   `json:"totalSeconds"`
}

// End returns the entry end time.
func (e ClientTimerEntry) End() time.Time {
	return time.UnixMilli(e.EndTime)
}

// Expired reports whether the entry end time is already in the past.
func (e ClientTimerEntry) Expired(now time.Time) bool {
	return e.EndTime < now.UnixMilli()
}

// TimerView is a read-only snapshot of one running countdown.
type TimerView struct {
	BookingID        int64     `json:"booking_id"`
	RemainingSeconds int       `json:"remaining_seconds"`
	EndTime          time.Time `json:"end_time"`
	Source           string    `json:"source"` // server or client
	Processing       bool      `json:"processing"`
}

// JournalEntry records the outcome of one auto-end attempt.
type JournalEntry struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	EndTime     time.Time `json:"end_time"`
	AttemptedAt time.Time `json:"attempted_at"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
}
