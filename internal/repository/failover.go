package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"xstation/internal/domain"
	"xstation/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverTimerPersistence writes to the primary until it fails, then to the
// fallback. The primary is probed again once a minute; since every save
// carries the full map, a successful probe leaves the primary up to date.
type FailoverTimerPersistence struct {
	primary  domain.TimerPersistence
	fallback domain.TimerPersistence
	clock    clockwork.Clock
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverTimerPersistence(primary, fallback domain.TimerPersistence, clock clockwork.Clock, logger *zerolog.Logger) *FailoverTimerPersistence {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverTimerPersistence{
		primary:  primary,
		fallback: fallback,
		clock:    clock,
		logger:   logger,
	}
}

// IsDown reports whether calls currently go to the fallback.
func (r *FailoverTimerPersistence) IsDown() bool {
	return r.isDown.Load()
}

func (r *FailoverTimerPersistence) Load(ctx context.Context) (map[int64]models.ClientTimerEntry, error) {
	if r.usePrimary() {
		entries, err := r.primary.Load(ctx)
		if err == nil {
			r.recovered()
			return entries, nil
		}
		r.markDown(err)
	}
	return r.fallback.Load(ctx)
}

func (r *FailoverTimerPersistence) Save(ctx context.Context, entries map[int64]models.ClientTimerEntry) error {
	if r.usePrimary() {
		err := r.primary.Save(ctx, entries)
		if err == nil {
			r.recovered()
			// fallback stays warm for the next outage
			_ = r.fallback.Save(ctx, entries)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Save(ctx, entries)
}

// usePrimary is true while the primary is healthy or a recovery probe is due.
func (r *FailoverTimerPersistence) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverTimerPersistence) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary timer persistence failed, falling back")
	}
	r.mu.Lock()
	r.lastCheck = r.clock.Now()
	r.mu.Unlock()
}

func (r *FailoverTimerPersistence) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary timer persistence recovered")
	}
}
