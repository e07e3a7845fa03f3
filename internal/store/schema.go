package store

import (
	"fmt"

	"gorm.io/gorm"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS detections (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		plate      TEXT NOT NULL,
		confidence REAL,
		source     TEXT NOT NULL,
		ts         DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_ts ON detections(ts DESC);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS detections (
		id         BIGSERIAL PRIMARY KEY,
		plate      TEXT NOT NULL,
		confidence DOUBLE PRECISION,
		source     TEXT NOT NULL,
		ts         TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_ts ON detections(ts DESC);`,
}

func runMigrations(db *gorm.DB, statements []string) error {
	for i, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
