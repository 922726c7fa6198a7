package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"xstation/internal/domain"
	"xstation/internal/metrics"
	"xstation/internal/models"

	"github.com/rs/zerolog"
)

// Store keeps client fallback timers in memory and writes the whole map
// through to the persistence adapter on every change.
type Store struct {
	mu          sync.RWMutex
	entries     map[int64]models.ClientTimerEntry
	persistence domain.TimerPersistence
	logger      *zerolog.Logger
}

// NewStore builds a store. A nil persistence keeps timers in memory only.
func NewStore(persistence domain.TimerPersistence, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{
		entries:     make(map[int64]models.ClientTimerEntry),
		persistence: persistence,
		logger:      logger,
	}
}

// Load replaces the in-memory map with the persisted one, dropping entries
// whose end time is already in the past. It returns how many were dropped.
func (s *Store) Load(ctx context.Context, now time.Time) (int, error) {
	if s.persistence == nil {
		return 0, nil
	}

	loaded, err := s.persistence.Load(ctx)
	corrupt := errors.Is(err, domain.ErrCorruptTimers)
	switch {
	case corrupt:
		s.logger.Warn().Err(err).Msg("stored client timers discarded")
		loaded = nil
	case err != nil:
		return 0, fmt.Errorf("load client timers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[int64]models.ClientTimerEntry, len(loaded))
	pruned := 0
	for id, entry := range loaded {
		if entry.Expired(now) {
			pruned++
			continue
		}
		s.entries[id] = entry
	}

	if pruned > 0 {
		s.logger.Info().Int("pruned", pruned).Int("kept", len(s.entries)).Msg("expired client timers discarded")
	}
	if pruned > 0 || corrupt {
		if err := s.saveLocked(ctx); err != nil {
			return pruned, err
		}
	}
	metrics.SetClientTimers(len(s.entries))
	return pruned, nil
}

func (s *Store) Get(id int64) (models.ClientTimerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	return entry, ok
}

// Set stores the entry. The in-memory value is kept even when persisting fails.
func (s *Store) Set(ctx context.Context, id int64, entry models.ClientTimerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entry
	metrics.SetClientTimers(len(s.entries))
	return s.saveLocked(ctx)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	metrics.SetClientTimers(len(s.entries))
	return s.saveLocked(ctx)
}

// List returns a copy of all entries.
func (s *Store) List() map[int64]models.ClientTimerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]models.ClientTimerEntry, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry
	}
	return out
}

func (s *Store) saveLocked(ctx context.Context) error {
	if s.persistence == nil {
		return nil
	}
	snapshot := make(map[int64]models.ClientTimerEntry, len(s.entries))
	for id, entry := range s.entries {
		snapshot[id] = entry
	}
	if err := s.persistence.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save client timers: %w", err)
	}
	return nil
}
