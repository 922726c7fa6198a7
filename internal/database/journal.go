package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"xstation/internal/models"
)

const defaultJournalLimit = 100

// RecordAutoEnd appends one auto-end attempt to the journal.
func (db *DB) RecordAutoEnd(ctx context.Context, entry *models.JournalEntry) error {
	query := `INSERT INTO auto_end_journal (booking_id, end_time_ms, attempted_at_ms, outcome, error)
              VALUES (?, ?, ?, ?, ?)`

	result, err := db.ExecContext(ctx, query,
		entry.BookingID,
		toMillis(entry.EndTime),
		toMillis(entry.AttemptedAt),
		entry.Outcome,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record auto-end: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListAutoEnds returns attempts made at or after since, newest first.
func (db *DB) ListAutoEnds(ctx context.Context, since time.Time, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}

	query := `SELECT id, booking_id, end_time_ms, attempted_at_ms, outcome, error
              FROM auto_end_journal
              WHERE attempted_at_ms >= ?
              ORDER BY attempted_at_ms DESC, id DESC
              LIMIT ?`

	return db.queryJournal(ctx, query, toMillis(since), limit)
}

// ListAutoEndsBetween returns attempts made within [from, to], newest first.
func (db *DB) ListAutoEndsBetween(ctx context.Context, from, to time.Time, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}

	query := `SELECT id, booking_id, end_time_ms, attempted_at_ms, outcome, error
              FROM auto_end_journal
              WHERE attempted_at_ms >= ? AND attempted_at_ms <= ?
              ORDER BY attempted_at_ms DESC, id DESC
              LIMIT ?`

	return db.queryJournal(ctx, query, toMillis(from), toMillis(to), limit)
}

func (db *DB) queryJournal(ctx context.Context, query string, args ...interface{}) ([]models.JournalEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		entry, err := scanJournalEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetAutoEnd returns one journal entry or ErrNotFound.
func (db *DB) GetAutoEnd(ctx context.Context, id int64) (*models.JournalEntry, error) {
	query := `SELECT id, booking_id, end_time_ms, attempted_at_ms, outcome, error
              FROM auto_end_journal WHERE id = ?`

	entry, err := scanJournalEntry(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJournalEntry(row rowScanner) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	var endMs, attemptedMs int64
	if err := row.Scan(&entry.ID, &entry.BookingID, &endMs, &attemptedMs, &entry.Outcome, &entry.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan journal entry: %w", err)
	}
	entry.EndTime = fromMillis(endMs)
	entry.AttemptedAt = fromMillis(attemptedMs)
	return &entry, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
