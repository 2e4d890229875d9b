// Package sqlite stores metadata documents in a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"scodata/internal/metadata/core"
)

// Compile-time contract assertion.
var _ core.Store = (*Store)(nil)

const pageSize = 256

// Store persists documents as JSON payloads keyed by (collection, id). The
// autoincrement seq column records insertion order.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "scodata.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		payload BLOB NOT NULL,
		UNIQUE(collection, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverSQLite }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Put(ctx context.Context, collection, id string, doc core.Document) error {
	if err := doc.Check(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(collection,id,payload) VALUES(?,?,?) ON CONFLICT(collection,id) DO UPDATE SET payload=excluded.payload`,
		collection, id, []byte(doc)); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (core.Document, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound(collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", collection, id, err)
	}
	return core.Document(payload), nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection=? AND id=?`, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List pages through the collection by seq so no connection is held while
// the caller consumes documents.
func (s *Store) List(ctx context.Context, collection string, filter core.Filter) iter.Seq2[core.Document, error] {
	return func(yield func(core.Document, error) bool) {
		var after int64
		for {
			page, last, err := s.page(ctx, collection, after)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, doc := range page {
				ok, err := core.Match(doc, filter)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if ok && !yield(doc, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = last
		}
	}
}

func (s *Store) page(ctx context.Context, collection string, after int64) ([]core.Document, int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, payload FROM documents WHERE collection=? AND seq>? ORDER BY seq LIMIT ?`,
		collection, after, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	var (
		out  []core.Document
		last int64
	)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&last, &payload); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		out = append(out, core.Document(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, last, nil
}

func (s *Store) Clear(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection=?`, collection); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}
