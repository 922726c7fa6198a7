package timer

import (
	"errors"
	"fmt"
	"time"

	"xstation/internal/models"
)

var ErrInvalidDuration = errors.New("invalid booking duration")

// Budget is the time frame of a booking about to be created.
type Budget struct {
	Start        time.Time
	End          *time.Time // nil for open-ended bookings
	TotalSeconds int
}

// ValidateDuration accepts open-ended (0) or 10..180 minutes in 10 minute steps.
func ValidateDuration(minutes int) error {
	if minutes == models.OpenEndedDuration {
		return nil
	}
	if minutes < models.MinDurationMinutes || minutes > models.MaxDurationMinutes ||
		minutes%models.DurationStepMinutes != 0 {
		return fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
	}
	return nil
}

// DurationOptions lists the selectable timed durations in minutes.
func DurationOptions() []int {
	opts := make([]int, 0, models.MaxDurationMinutes/models.DurationStepMinutes)
	for m := models.MinDurationMinutes; m <= models.MaxDurationMinutes; m += models.DurationStepMinutes {
		opts = append(opts, m)
	}
	return opts
}

// PlanBudget computes start and end of a booking created at now.
func PlanBudget(now time.Time, minutes int) (Budget, error) {
	if err := ValidateDuration(minutes); err != nil {
		return Budget{}, err
	}
	b := Budget{Start: now}
	if minutes == models.OpenEndedDuration {
		return b, nil
	}
	d := time.Duration(minutes) * time.Minute
	end := now.Add(d)
	b.End = &end
	b.TotalSeconds = int(d / time.Second)
	return b, nil
}

// ClientEntry returns the fallback entry to store for a timed budget.
func (b Budget) ClientEntry() (models.ClientTimerEntry, bool) {
	if b.End == nil {
		return models.ClientTimerEntry{}, false
	}
	return models.ClientTimerEntry{EndTime: b.End.UnixMilli(), TotalSeconds: b.TotalSeconds}, true
}
