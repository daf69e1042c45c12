// Package history archives exported inventory lists in SQLite.
//
// Only exports are stored. The running inventory is never persisted.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pantry/inventory"
)

// Export is one archived export.
type Export struct {
	ID        int64           `json:"id"`
	Text      string          `json:"text"`
	Rows      []inventory.Row `json:"rows"`
	Items     int             `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is a SQLite-backed export archive.
type Store struct {
	mu  sync.RWMutex
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the archive at path.
//
// Arguments:
//   - path: The database file path.
//
// Returns:
//   - *Store: The opened store.
//   - error: An error if the database cannot be opened or migrated.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate history database")
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		rows TEXT NOT NULL,
		items INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exports_created_at ON exports(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores an export. Rows with a zero effective quantity are dropped
// so the archive matches the exported text.
func (s *Store) Record(ctx context.Context, text string, rows []inventory.Row) error {
	kept := make([]inventory.Row, 0, len(rows))
	items := 0
	for _, row := range rows {
		if qty := row.EffectiveQuantity(); qty > 0 {
			kept = append(kept, row)
			items += qty
		}
	}

	encoded, err := json.Marshal(kept)
	if err != nil {
		return errors.Wrap(err, "failed to encode rows")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exports (text, rows, items, created_at)
		VALUES (?, ?, ?, ?)
	`, text, string(encoded), items, s.now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to insert export")
	}
	return nil
}

// Recent returns up to limit exports, newest first. A non-positive limit
// returns every export.
func (s *Store) Recent(ctx context.Context, limit int) ([]Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, text, rows, items, created_at FROM exports ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query exports")
	}
	defer rows.Close()

	var exports []Export
	for rows.Next() {
		var (
			export  Export
			encoded string
		)
		if err := rows.Scan(&export.ID, &export.Text, &encoded, &export.Items, &export.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan export")
		}
		if err := json.Unmarshal([]byte(encoded), &export.Rows); err != nil {
			return nil, errors.Wrapf(err, "failed to decode rows of export %d", export.ID)
		}
		exports = append(exports, export)
	}
	return exports, errors.Wrap(rows.Err(), "failed to read exports")
}

// Count returns the number of archived exports.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exports`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count exports")
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
