package postgres

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/jkaninda/skillrouter/internal/storage"
)

// Store implements storage.Store on top of a GORM connection. The SQLite
// backend embeds it with its own connection, so the repositories are
// written once.
type Store struct {
	db     *gorm.DB
	driver string
	closer func() error

	mu        sync.Mutex
	decisions storage.DecisionStore
	skills    storage.SkillStore
}

// NewStore wraps an opened PostgreSQL DB as a unified Store.
func NewStore(pgDB *DB) *Store {
	return NewGormStore(pgDB.GormDB(), storage.DriverPostgres)
}

// NewGormStore wraps any migrated GORM connection.
func NewGormStore(db *gorm.DB, driver string) *Store {
	return &Store{
		db:     db,
		driver: driver,
		closer: func() error { return Close(db) },
	}
}

// Migrate re-runs AutoMigrate. Open already migrates, so this only matters
// for stores built with NewGormStore.
func (s *Store) Migrate(_ context.Context) error {
	return AutoMigrate(s.db)
}

func (s *Store) Ping(ctx context.Context) error {
	return Ping(ctx, s.db)
}

func (s *Store) Close() error {
	return s.closer()
}

func (s *Store) Driver() string {
	return s.driver
}

// GormDB returns the underlying GORM DB for direct access when needed.
func (s *Store) GormDB() *gorm.DB {
	return s.db
}

// --- Sub-store accessors ---

func (s *Store) Decisions() storage.DecisionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decisions == nil {
		s.decisions = NewDecisionRepository(s.db)
	}
	return s.decisions
}

func (s *Store) Skills() storage.SkillStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skills == nil {
		s.skills = NewSkillRepository(s.db)
	}
	return s.skills
}

// Compile-time check.
var _ storage.Store = (*Store)(nil)
