package constpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotFrozen is returned when saving a pool whose indices are not final.
var ErrNotFrozen = errors.New("constant pool is not frozen")

// Store persists frozen pools in SQLite so they can be reloaded by later
// runs. Extending a stored pool renumbers it; see Extend.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the store at dbPath. Use ":memory:" for a
// throwaway store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS constants (
		kind    TEXT    NOT NULL,
		idx     INTEGER NOT NULL,
		value   TEXT    NOT NULL,
		definer TEXT    NOT NULL,
		name    TEXT    NOT NULL,
		type    TEXT    NOT NULL,
		PRIMARY KEY (kind, idx)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save replaces the stored pool with p, which must be frozen.
func (s *Store) Save(ctx context.Context, p *Pool) error {
	if !p.Frozen() {
		return ErrNotFrozen
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM constants"); err != nil {
		return fmt.Errorf("clearing constants: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO constants (kind, idx, value, definer, name, type) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range p.Entries() {
		c := e.Constant
		if _, err := stmt.ExecContext(ctx, c.Kind.String(), e.Index, c.Value, c.Definer, c.Name, c.Type); err != nil {
			return fmt.Errorf("saving %v: %w", c, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing constants: %w", err)
	}
	return nil
}

// Load returns the stored pool, frozen with its saved indices. An empty
// store yields an empty frozen pool.
func (s *Store) Load(ctx context.Context) (*Pool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, idx, value, definer, name, type FROM constants ORDER BY kind, idx")
	if err != nil {
		return nil, fmt.Errorf("querying constants: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var kind string
		var e Entry
		c := &e.Constant
		if err := rows.Scan(&kind, &e.Index, &c.Value, &c.Definer, &c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scanning constant: %w", err)
		}
		if c.Kind, err = ParseKind(kind); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return restore(entries)
}

// Extend loads the stored pool and returns a new unfrozen pool seeded with
// its constants plus extra. Freezing the result renumbers everything, so
// callers should Save it back.
func (s *Store) Extend(ctx context.Context, extra []Constant) (*Pool, error) {
	old, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	p := New()
	for _, e := range old.Entries() {
		if err := p.Intern(e.Constant); err != nil {
			return nil, err
		}
	}
	if err := p.InternAll(extra); err != nil {
		return nil, err
	}
	return p, nil
}
