package timer

import "time"

// ResolveEndTime merges the two sources of a booking end time. The backend
// value wins whenever it is known; the client fallback only bridges the gap
// until the backend reports one.
func ResolveEndTime(server, client *time.Time) *time.Time {
	if server != nil {
		return server
	}
	return client
}

// RemainingSeconds is max(0, floor((end-now)/1s)).
func RemainingSeconds(end, now time.Time) int {
	ms := end.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(ms / 1000)
}
