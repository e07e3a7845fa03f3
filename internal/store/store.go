// Package store is the append-only detection log.
//
// SQLite is the default backend: the file is opened in WAL mode with a busy
// timeout, so writers from any number of goroutines or processes are
// serialized by the database while readers see the last committed state
// without waiting. PostgreSQL is accepted for shared deployments.
//
// Records are never updated or deleted. Opening an existing store is
// idempotent.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultRecentLimit is used by Recent when limit is not positive.
const DefaultRecentLimit = 50

var (
	// ErrEmptyPlate is returned when a record has no plate text.
	ErrEmptyPlate = errors.New("plate text is empty")

	// ErrWrite wraps every failure to commit a record.
	ErrWrite = errors.New("detection write failed")
)

// Record is a detection to be written.
type Record struct {
	Plate      string
	Confidence *float64
	Source     string

	// Timestamp defaults to the insert time when zero.
	Timestamp time.Time
}

// Detection is a committed record.
type Detection struct {
	ID         int64     `json:"id"`
	Plate      string    `json:"plate"`
	Confidence *float64  `json:"confidence,omitempty"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"ts"`
}

type detectionRow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	Plate      string
	Confidence *float64
	Source     string
	Ts         time.Time
}

func (detectionRow) TableName() string { return "detections" }

func (r detectionRow) detection() Detection {
	return Detection{
		ID:         r.ID,
		Plate:      r.Plate,
		Confidence: r.Confidence,
		Source:     r.Source,
		Timestamp:  r.Ts,
	}
}

// Options selects the backend.
type Options struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string

	// Path is the SQLite database file. Parent directories are created.
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string

	Logger zerolog.Logger
}

// Store is safe for concurrent use.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open connects to the backend and ensures the schema exists.
func Open(opts Options) (*Store, error) {
	var (
		dialector gorm.Dialector
		schema    []string
	)

	switch strings.ToLower(opts.Driver) {
	case "", "sqlite":
		if opts.Path == "" {
			return nil, errors.New("sqlite path is required")
		}
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(sqliteDSN(opts.Path))
		schema = sqliteSchema
	case "postgres":
		if opts.DSN == "" {
			return nil, errors.New("postgres dsn is required")
		}
		dialector = postgres.Open(opts.DSN)
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unknown db driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := runMigrations(db, schema); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			sqlDB.Close()
		}
		return nil, err
	}
	return &Store{db: db, log: opts.Logger}, nil
}

// sqliteDSN enables WAL, waits up to 10s for the write lock, syncs every
// commit, and takes the write lock when a transaction begins.
func sqliteDSN(path string) string {
	return "file:" + path + "?_journal_mode=WAL&_busy_timeout=10000&_synchronous=FULL&_txlock=immediate"
}

// Insert commits one record and returns its id.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	row, err := newRow(rec)
	if err != nil {
		return 0, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Error().Err(err).Str("plate", rec.Plate).Str("source", rec.Source).Msg("detection insert failed")
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return row.ID, nil
}

// InsertMany commits records in one transaction, in order. Either every
// record is written or none is.
func (s *Store) InsertMany(ctx context.Context, recs []Record) ([]int64, error) {
	rows := make([]detectionRow, len(recs))
	for i, rec := range recs {
		row, err := newRow(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows[i] = row
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(rows))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
			ids[i] = rows[i].ID
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int("records", len(rows)).Msg("detection batch insert failed")
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return ids, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	var rows []detectionRow
	err := s.db.WithContext(ctx).
		Order("ts DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read detections: %w", err)
	}

	out := make([]Detection, len(rows))
	for i, r := range rows {
		out[i] = r.detection()
	}
	return out, nil
}

// Count returns the number of committed records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&detectionRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newRow(rec Record) (detectionRow, error) {
	if strings.TrimSpace(rec.Plate) == "" {
		return detectionRow{}, ErrEmptyPlate
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return detectionRow{
		Plate:      rec.Plate,
		Confidence: rec.Confidence,
		Source:     rec.Source,
		Ts:         ts.UTC(),
	}, nil
}
