// Package postgres stores metadata documents as JSONB rows in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"scodata/internal/metadata/core"
)

// Compile-time contract assertion.
var _ core.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/scodata?sslmode=disable"
	pageSize      = 256
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		seq BIGSERIAL PRIMARY KEY,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		payload JSONB NOT NULL,
		UNIQUE(collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS documents_collection_seq ON documents(collection, seq)`,
	`CREATE INDEX IF NOT EXISTS documents_payload ON documents USING GIN (payload jsonb_path_ops)`,
}

// Store persists documents in a single JSONB table. BIGSERIAL seq preserves
// insertion order; filters are pushed down as JSONB containment and then
// re-checked with core.Match.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN)
// and ensures the documents table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Put(ctx context.Context, collection, id string, doc core.Document) error {
	if err := doc.Check(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(collection,id,payload) VALUES($1,$2,$3) ON CONFLICT(collection,id) DO UPDATE SET payload=EXCLUDED.payload`,
		collection, id, []byte(doc)); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (core.Document, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE collection=$1 AND id=$2`, collection, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound(collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", collection, id, err)
	}
	return core.Document(payload), nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, collection string, filter core.Filter) iter.Seq2[core.Document, error] {
	return func(yield func(core.Document, error) bool) {
		contains, err := containment(filter)
		if err != nil {
			yield(nil, err)
			return
		}
		var after int64
		for {
			page, last, err := s.page(ctx, collection, after, contains)
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

func (s *Store) page(ctx context.Context, collection string, after int64, contains string) ([]core.Document, int64, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if contains == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT seq, payload FROM documents WHERE collection=$1 AND seq>$2 ORDER BY seq LIMIT $3`,
			collection, after, pageSize)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT seq, payload FROM documents WHERE collection=$1 AND seq>$2 AND payload @> $4::jsonb ORDER BY seq LIMIT $3`,
			collection, after, pageSize, contains)
	}
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection=$1`, collection); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}

// containment turns a dotted filter into the nested JSON object used with @>.
func containment(filter core.Filter) (string, error) {
	if len(filter) == 0 {
		return "", nil
	}
	root := map[string]any{}
	for path, v := range filter {
		parts := strings.Split(path, ".")
		cur := root
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = v
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
