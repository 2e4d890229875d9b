// Package memory provides an in-memory implementation of the metadata store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"iter"
	"sync"

	"scodata/internal/metadata/core"
)

// Compile-time contract assertion.
var _ core.Store = (*Store)(nil)

type collection struct {
	docs  map[string]core.Document
	order []string
}

// Store keeps documents in process memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]core.Document)}
		s.collections[name] = c
	}
	return c
}

// Put stores doc under id, keeping the original position for overwrites.
func (s *Store) Put(_ context.Context, collection, id string, doc core.Document) error {
	if err := doc.Check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(collection)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = doc.Clone()
	return nil
}

// Get returns a copy of the stored document.
func (s *Store) Get(_ context.Context, collection, id string) (core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, core.NotFound(collection, id)
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, core.NotFound(collection, id)
	}
	return doc.Clone(), nil
}

// Delete removes id and reports whether it existed.
func (s *Store) Delete(_ context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return false, nil
	}
	if _, ok := c.docs[id]; !ok {
		return false, nil
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// List yields matching documents in insertion order. The id order is
// captured when iteration starts; documents deleted mid-iteration are skipped.
func (s *Store) List(ctx context.Context, collection string, filter core.Filter) iter.Seq2[core.Document, error] {
	return func(yield func(core.Document, error) bool) {
		s.mu.RLock()
		var ids []string
		if c, ok := s.collections[collection]; ok {
			ids = append(ids, c.order...)
		}
		s.mu.RUnlock()
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			s.mu.RLock()
			var doc core.Document
			c, ok := s.collections[collection]
			if ok {
				doc, ok = c.docs[id]
			}
			s.mu.RUnlock()
			if !ok {
				continue
			}
			match, err := core.Match(doc, filter)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if match && !yield(doc.Clone(), nil) {
				return
			}
		}
	}
}

// Clear drops every document in collection.
func (s *Store) Clear(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}
