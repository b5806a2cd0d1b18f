// Package lru implements an anchoring store that acts as a least-recently-used cache for a nested store.
package lru

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = &Store{}

// Store implements a memory-based least-recently-used cache of version chains.
// Writes pass through to the underlying store
// and evict the chain they touch,
// so the cache is coherent only as long as nothing else writes to the nested store.
type Store struct {
	c *lru.Cache // anchor id -> anchoring.Chain
	s anchoring.Store

	mu  sync.Mutex
	gen uint64 // count of completed appends
}

// New produces a new Store backed by `s` and caching up to `size` chains.
func New(s anchoring.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Versions implements anchoring.Store.Versions.
func (s *Store) Versions(ctx context.Context, id string) (anchoring.Chain, error) {
	if got, ok := s.c.Get(id); ok {
		return clone(got.(anchoring.Chain)), nil
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	chain, err := s.s.Versions(ctx, id)
	if err != nil {
		return nil, err
	}

	// A chain read while an append was in flight may predate it.
	s.mu.Lock()
	if s.gen == gen {
		s.c.Add(id, clone(chain))
	}
	s.mu.Unlock()

	return chain, nil
}

// Append implements anchoring.Store.Append.
func (s *Store) Append(ctx context.Context, id string, rec anchoring.Record) error {
	defer func() {
		s.mu.Lock()
		s.gen++
		s.c.Remove(id)
		s.mu.Unlock()
	}()
	return s.s.Append(ctx, id, rec)
}

// ListAnchors implements anchoring.Store.ListAnchors.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string) error) error {
	return s.s.ListAnchors(ctx, start, f)
}

// Close closes the nested store, if it needs closing.
func (s *Store) Close() error {
	return store.Close(s.s)
}

func clone(c anchoring.Chain) anchoring.Chain {
	if c == nil {
		return nil
	}
	result := make(anchoring.Chain, len(c))
	copy(result, c)
	return result
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (anchoring.Store, error) {
		size, err := store.IntParam(conf, "size")
		if err != nil {
			return nil, err
		}
		nestedStore, err := store.CreateNested(ctx, conf, "nested")
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, size)
	})
}

