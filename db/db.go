package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Open opens (or creates) the sqlite database and applies the schema.
func Open(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(database); err != nil {
		database.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Database ready")
	return database, nil
}

func migrate(database *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS heaters (
			id TEXT PRIMARY KEY,
			iot_id TEXT NOT NULL,
			name TEXT NOT NULL,
			home_id TEXT,
			home_name TEXT,
			model TEXT,
			firmware_version TEXT,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			heater_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			top_tank_temp REAL,
			outlet_temp REAL,
			inlet_temp REAL,
			ambient_temp REAL,
			comp_speed REAL,
			flow_rate REAL,
			energy_used REAL,
			liters_used REAL,
			target_temp_f REAL,
			mode TEXT NOT NULL,
			connected INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_heater_time ON readings (heater_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS daily_usage (
			heater_id TEXT NOT NULL,
			date TEXT NOT NULL,
			energy_kwh REAL NOT NULL,
			water_l REAL NOT NULL,
			PRIMARY KEY (heater_id, date)
		)`,
	}

	for _, stmt := range schema {
		if _, err := database.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
