// Package sqlite implements storage.Store using SQLite via GORM.
// Uses modernc.org/sqlite (pure Go, no CGO) through the glebarez/sqlite
// GORM driver and reuses the PostgreSQL repositories over the same models.
//
// WAL journaling is on by default so the HTTP gateway can read the
// decision log while routes are being recorded.
package sqlite

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/jkaninda/skillrouter/internal/storage"
	pgstore "github.com/jkaninda/skillrouter/internal/storage/postgres"
)

// Config holds SQLite-specific configuration.
type Config struct {
	Path        string // Database file path, or ":memory:".
	JournalMode string // Default: "wal".
}

// Store implements storage.Store backed by a SQLite file.
type Store struct {
	*pgstore.Store
	path string
}

// Open creates the database file if needed, applies pragmas and migrates.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "wal"
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path, journalMode)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  pgstore.NewGormLogger(slogger),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite allows one writer at a time.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := pgstore.AutoMigrate(db); err != nil {
		_ = pgstore.Close(db)
		return nil, fmt.Errorf("migrating sqlite database: %w", err)
	}

	slogger.Info("sqlite store opened", slog.String("path", cfg.Path), slog.String("journal_mode", journalMode))
	return &Store{
		Store: pgstore.NewGormStore(db, storage.DriverSQLite),
		path:  cfg.Path,
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Compile-time check.
var _ storage.Store = (*Store)(nil)
