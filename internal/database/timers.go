package database

import (
	"context"
	"fmt"

	"xstation/internal/models"
)

// ClientTimerTable persists client fallback timers, one row per booking.
type ClientTimerTable struct {
	db *DB
}

func (db *DB) ClientTimers() *ClientTimerTable {
	return &ClientTimerTable{db: db}
}

func (t *ClientTimerTable) Load(ctx context.Context) (map[int64]models.ClientTimerEntry, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT booking_id, end_time_ms, total_seconds FROM client_timers`)
	if err != nil {
		return nil, fmt.Errorf("failed to query client timers: %w", err)
	}
	defer rows.Close()

	entries := make(map[int64]models.ClientTimerEntry)
	for rows.Next() {
		var id int64
		var entry models.ClientTimerEntry
		if err := rows.Scan(&id, &entry.EndTime, &entry.TotalSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan client timer: %w", err)
		}
		entries[id] = entry
	}
	return entries, rows.Err()
}

// Save replaces the table contents with entries in one transaction.
func (t *ClientTimerTable) Save(ctx context.Context, entries map[int64]models.ClientTimerEntry) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM client_timers`); err != nil {
		return fmt.Errorf("failed to clear client timers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO client_timers (booking_id, end_time_ms, total_seconds) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, entry := range entries {
		if _, err := stmt.ExecContext(ctx, id, entry.EndTime, entry.TotalSeconds); err != nil {
			return fmt.Errorf("failed to insert client timer %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit client timers: %w", err)
	}
	return nil
}
