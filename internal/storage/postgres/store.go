package postgres

import (
	"context"
	"sync"

	"github.com/jkaninda/mlinzi/internal/restart"
	"github.com/jkaninda/mlinzi/internal/storage"
)

// Store implements storage.Store backed by PostgreSQL.
// It wraps an open DB and lazily creates the restart repository.
type Store struct {
	pgDB *DB

	mu       sync.Mutex
	restarts restart.DocumentStore
}

// NewStore wraps an existing DB as a Store.
func NewStore(pgDB *DB) *Store {
	return &Store{pgDB: pgDB}
}

func (s *Store) RestartDocuments() restart.DocumentStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restarts == nil {
		s.restarts = NewRestartRepository(s.pgDB.GormDB())
	}
	return s.restarts
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pgDB.Ping(ctx)
}

func (s *Store) Migrate(_ context.Context) error {
	// PostgreSQL migration is done in Open() via AutoMigrate.
	return nil
}

func (s *Store) Close() error {
	return s.pgDB.Close()
}

func (s *Store) Driver() string {
	return storage.DriverPostgres
}

var _ storage.Store = (*Store)(nil)
