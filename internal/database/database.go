package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	// Создаем директорию для БД, если её нет
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// каждое соединение к :memory: получает свою базу
		db.SetMaxOpenConns(1)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("База данных инициализирована")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		// Резервные времена окончания, посчитанные при старте брони
		`CREATE TABLE IF NOT EXISTS client_timers (
            booking_id INTEGER PRIMARY KEY,
            end_time_ms INTEGER NOT NULL,
            total_seconds INTEGER NOT NULL
        )`,
		// Журнал попыток автозавершения
		`CREATE TABLE IF NOT EXISTS auto_end_journal (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL,
            end_time_ms INTEGER NOT NULL,
            attempted_at_ms INTEGER NOT NULL,
            outcome TEXT NOT NULL,
            error TEXT NOT NULL DEFAULT ''
        )`,

		`CREATE INDEX IF NOT EXISTS idx_journal_attempted_at ON auto_end_journal(attempted_at_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_booking_id ON auto_end_journal(booking_id)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
