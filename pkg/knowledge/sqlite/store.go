// Package sqlite implements the [knowledge.Store] interface on an embedded
// SQLite database (modernc.org/sqlite, no cgo).
//
// The database file is the single source of truth. For the scan-heavy
// operations (search, entity merge, relation reinforcement) the store keeps
// a full in-memory view of all rows, loaded once at [Open] and mutated under
// a single write lock; every mutation is written through to SQLite inside
// the same critical section, so the view and the database cannot diverge.
// This is viable because the corpora are small (thousands of rows, not
// millions). JSON snapshots are export-only, produced on demand by
// ExportSnapshot.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/setsuna-project/setsuna/pkg/knowledge"
)

// Compile-time interface check.
var _ knowledge.Store = (*Store)(nil)

// Store is the SQLite-backed knowledge store.
// All exported methods are safe for concurrent use.
type Store struct {
	db *sql.DB

	mu        sync.RWMutex
	items     map[string]*knowledge.Item
	entities  map[string]*knowledge.Entity
	relations map[string]*knowledge.Relation

	now func() time.Time
}

// Open opens (or creates) the knowledge database at path and loads the full
// row set into memory. The connection uses WAL journaling and a busy timeout
// so that readers (report tools) can coexist with the server process.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge sqlite: open %q: %w", path, err)
	}

	// SQLite serialises writes anyway; a small pool is enough.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("knowledge sqlite: ping: %w", err)
	}

	s := &Store{
		db:        db,
		items:     make(map[string]*knowledge.Item),
		entities:  make(map[string]*knowledge.Entity),
		relations: make(map[string]*knowledge.Relation),
		now:       time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Counts returns the number of items, entities, and relations currently in
// the store.
func (s *Store) Counts() (items, entities, relations int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), len(s.entities), len(s.relations)
}
