package repository

import (
	"context"
	"sync"

	"xstation/internal/models"
)

// MemoryTimerPersistence keeps the timer map in process. It is the fallback
// behind a failing primary and the default when nothing else is configured.
type MemoryTimerPersistence struct {
	mu      sync.RWMutex
	entries map[int64]models.ClientTimerEntry
}

func NewMemoryTimerPersistence() *MemoryTimerPersistence {
	return &MemoryTimerPersistence{entries: make(map[int64]models.ClientTimerEntry)}
}

func (r *MemoryTimerPersistence) Load(ctx context.Context) (map[int64]models.ClientTimerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneTimers(r.entries), nil
}

func (r *MemoryTimerPersistence) Save(ctx context.Context, entries map[int64]models.ClientTimerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = cloneTimers(entries)
	return nil
}
