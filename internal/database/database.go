// Package database opens the sqlite store, applies the schema and
// provides transaction and locking primitives for the booking core.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the booking service.
type DB struct {
	*sql.DB
}

// New opens the database at path and runs migrations.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite has a single writer; one pooled connection avoids
	// SQLITE_BUSY under concurrent transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// WithTx runs fn inside a transaction, rolling back on error.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS areas (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			description TEXT,
			area_id INTEGER,
			hour_start TEXT NOT NULL DEFAULT '09:00',
			hour_end TEXT NOT NULL DEFAULT '21:00',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (area_id) REFERENCES areas(id)
		)`,

		`CREATE TABLE IF NOT EXISTS scenarios (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			min_booking_duration INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS room_scenarios (
			room_id INTEGER NOT NULL,
			scenario_id INTEGER NOT NULL,
			PRIMARY KEY (room_id, scenario_id),
			FOREIGN KEY (room_id) REFERENCES rooms(id),
			FOREIGN KEY (scenario_id) REFERENCES scenarios(id)
		)`,

		`CREATE TABLE IF NOT EXISTS clients (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			phone TEXT,
			email TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS client_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS directions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS specialists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			client_id INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (client_id) REFERENCES clients(id)
		)`,

		`CREATE TABLE IF NOT EXISTS specialist_directions (
			specialist_id INTEGER NOT NULL,
			direction_id INTEGER NOT NULL,
			PRIMARY KEY (specialist_id, direction_id),
			FOREIGN KEY (specialist_id) REFERENCES specialists(id),
			FOREIGN KEY (direction_id) REFERENCES directions(id)
		)`,

		`CREATE TABLE IF NOT EXISTS specialist_weekly_intervals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			specialist_id INTEGER NOT NULL,
			weekday INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			FOREIGN KEY (specialist_id) REFERENCES specialists(id)
		)`,

		`CREATE TABLE IF NOT EXISTS specialist_schedule_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			specialist_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			is_day_off BOOLEAN NOT NULL DEFAULT 0,
			note TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (specialist_id, date),
			FOREIGN KEY (specialist_id) REFERENCES specialists(id)
		)`,

		`CREATE TABLE IF NOT EXISTS specialist_override_intervals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			override_id INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			FOREIGN KEY (override_id) REFERENCES specialist_schedule_overrides(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			cost TEXT NOT NULL DEFAULT '0.00',
			group_id INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS cancellation_reasons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS payment_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS tariffs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			max_people INTEGER NOT NULL DEFAULT 1,
			base_duration_minutes INTEGER NOT NULL,
			base_cost TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tariff_rooms (
			tariff_id INTEGER NOT NULL,
			room_id INTEGER NOT NULL,
			PRIMARY KEY (tariff_id, room_id),
			FOREIGN KEY (tariff_id) REFERENCES tariffs(id),
			FOREIGN KEY (room_id) REFERENCES rooms(id)
		)`,

		`CREATE TABLE IF NOT EXISTS tariff_scenarios (
			tariff_id INTEGER NOT NULL,
			scenario_id INTEGER NOT NULL,
			PRIMARY KEY (tariff_id, scenario_id),
			FOREIGN KEY (tariff_id) REFERENCES tariffs(id),
			FOREIGN KEY (scenario_id) REFERENCES scenarios(id)
		)`,

		`CREATE TABLE IF NOT EXISTS tariff_weekly_intervals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tariff_id INTEGER NOT NULL,
			weekday INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			FOREIGN KEY (tariff_id) REFERENCES tariffs(id)
		)`,

		`CREATE TABLE IF NOT EXISTS tariff_units (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scenario_id INTEGER UNIQUE NOT NULL,
			unit_duration_minutes INTEGER NOT NULL,
			unit_cost TEXT NOT NULL,
			FOREIGN KEY (scenario_id) REFERENCES scenarios(id)
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id INTEGER NOT NULL,
			scenario_id INTEGER NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (client_id, scenario_id),
			FOREIGN KEY (client_id) REFERENCES clients(id),
			FOREIGN KEY (scenario_id) REFERENCES scenarios(id)
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id INTEGER NOT NULL,
			specialist_id INTEGER,
			client_id INTEGER,
			client_group_id INTEGER,
			scenario_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			cancellation_reason_id INTEGER,
			tariff_id INTEGER,
			people_count INTEGER NOT NULL DEFAULT 1,
			total_cost TEXT NOT NULL DEFAULT '0.00',
			comment TEXT,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (room_id) REFERENCES rooms(id),
			FOREIGN KEY (specialist_id) REFERENCES specialists(id),
			FOREIGN KEY (client_id) REFERENCES clients(id),
			FOREIGN KEY (client_group_id) REFERENCES client_groups(id),
			FOREIGN KEY (scenario_id) REFERENCES scenarios(id),
			FOREIGN KEY (cancellation_reason_id) REFERENCES cancellation_reasons(id),
			FOREIGN KEY (tariff_id) REFERENCES tariffs(id)
		)`,

		`CREATE TABLE IF NOT EXISTS reservation_services (
			reservation_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			PRIMARY KEY (reservation_id, service_id),
			FOREIGN KEY (reservation_id) REFERENCES reservations(id),
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reservation_id INTEGER NOT NULL,
			payment_type_id INTEGER NOT NULL,
			amount TEXT NOT NULL,
			is_cancelled BOOLEAN NOT NULL DEFAULT 0,
			comment TEXT,
			idempotency_key TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (reservation_id) REFERENCES reservations(id),
			FOREIGN KEY (payment_type_id) REFERENCES payment_types(id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_weekly_intervals_specialist ON specialist_weekly_intervals(specialist_id, weekday)`,
		`CREATE INDEX IF NOT EXISTS idx_overrides_specialist_date ON specialist_schedule_overrides(specialist_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_room_times ON reservations(room_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_specialist_times ON reservations(specialist_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_client_times ON reservations(client_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_reservation ON payments(reservation_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_idempotency ON payments(idempotency_key) WHERE idempotency_key IS NOT NULL AND idempotency_key != ''`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
