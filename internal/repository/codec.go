package repository

import (
	"encoding/json"
	"fmt"
	"strconv"

	"xstation/internal/domain"
	"xstation/internal/models"
)

// EncodeTimers renders the timer map as a JSON object keyed by booking id:
// {"42":{"endTime":1718035200000,"totalSeconds":3600}}.
func EncodeTimers(entries map[int64]models.ClientTimerEntry) ([]byte, error) {
	out := make(map[string]models.ClientTimerEntry, len(entries))
	for id, entry := range entries {
		out[strconv.FormatInt(id, 10)] = entry
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal client timers: %w", err)
	}
	return data, nil
}

// DecodeTimers parses the JSON object written by EncodeTimers. Entries with a
// non-numeric key or without an end time are skipped.
func DecodeTimers(data []byte) (map[int64]models.ClientTimerEntry, error) {
	entries := make(map[int64]models.ClientTimerEntry)
	if len(data) == 0 {
		return entries, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return entries, fmt.Errorf("%w: %v", domain.ErrCorruptTimers, err)
	}

	for key, value := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		var entry models.ClientTimerEntry
		if err := json.Unmarshal(value, &entry); err != nil || entry.EndTime <= 0 {
			continue
		}
		entries[id] = entry
	}
	return entries, nil
}

func cloneTimers(entries map[int64]models.ClientTimerEntry) map[int64]models.ClientTimerEntry {
	out := make(map[int64]models.ClientTimerEntry, len(entries))
	for id, entry := range entries {
		out[id] = entry
	}
	return out
}
