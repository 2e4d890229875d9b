// Package core defines the metadata store contract shared by the document
// backends.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

// Driver identifies a concrete metadata backend.
type Driver string

const (
	// DriverMemory keeps documents in process memory (tests, ephemeral use).
	DriverMemory Driver = "memory"
	// DriverSQLite stores documents in a local SQLite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores documents as JSONB rows.
	DriverPostgres Driver = "postgres"
	// DriverRedis stores documents in Redis hashes.
	DriverRedis Driver = "redis"
)

// ErrNotFound is returned by Get for missing documents.
var ErrNotFound = errors.New("metadata: document not found")

// Document is a JSON object.
type Document []byte

// Encode marshals v into a Document. v must encode to a JSON object.
func Encode(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	d := Document(b)
	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// Decode unmarshals the document into v.
func (d Document) Decode(v any) error { return json.Unmarshal(d, v) }

// Check verifies the document is a JSON object.
func (d Document) Check() error {
	trimmed := bytes.TrimSpace(d)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("metadata: document must be a JSON object")
	}
	return nil
}

// Fields decodes the document into a generic map.
func (d Document) Fields() (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(d, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clone returns an independent copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return append(Document(nil), d...)
}

// Store persists JSON documents grouped in collections.
//
// Put overwrites an existing document with the same id and keeps its original
// position in the listing order. Get fails with ErrNotFound for missing ids.
// List yields documents in insertion order, lazily; every call of the
// returned sequence starts a fresh scan. Clear removes every document in a
// collection and exists for initialization only.
type Store interface {
	Put(ctx context.Context, collection, id string, doc Document) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
	List(ctx context.Context, collection string, filter Filter) iter.Seq2[Document, error]
	Clear(ctx context.Context, collection string) error
	Close() error
	Driver() Driver
}

// Collect drains a listing into a slice.
func Collect(seq iter.Seq2[Document, error]) ([]Document, error) {
	var out []Document
	for doc, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// NotFound wraps ErrNotFound with the collection and id.
func NotFound(collection, id string) error {
	return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
}
