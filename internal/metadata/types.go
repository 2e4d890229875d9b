// Package metadata re-exports the metadata store contract and wires the
// concrete document backends.
package metadata

import (
	"scodata/internal/metadata/core"
)

type (
	// Driver identifies a metadata backend.
	Driver = core.Driver
	// Document is a JSON object.
	Document = core.Document
	// Filter selects documents by dotted field path.
	Filter = core.Filter
	// Store is the metadata store contract.
	Store = core.Store
)

const (
	DriverMemory   = core.DriverMemory   // in-memory only (tests / ephemeral)
	DriverSQLite   = core.DriverSQLite   // embedded sqlite file
	DriverPostgres = core.DriverPostgres // PostgreSQL server
	DriverRedis    = core.DriverRedis    // Redis server
)

// ErrNotFound is returned by Get for missing documents.
var ErrNotFound = core.ErrNotFound

// Encode marshals v into a Document.
func Encode(v any) (Document, error) { return core.Encode(v) }

// Collect drains a listing into a slice.
var Collect = core.Collect
