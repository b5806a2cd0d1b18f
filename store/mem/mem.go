// Package mem implements an in-memory anchoring store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = &Store{}

// Store is a memory-based implementation of an anchoring store.
type Store struct {
	mu      sync.Mutex
	records map[string][]anchoring.Record
}

// New produces a new Store.
func New() *Store {
	return &Store{
		records: make(map[string][]anchoring.Record),
	}
}

// Versions implements anchoring.Store.Versions.
func (s *Store) Versions(_ context.Context, id string) (anchoring.Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain(id), nil
}

// Caller must obtain a lock.
func (s *Store) chain(id string) anchoring.Chain {
	recs := s.records[id]
	if len(recs) == 0 {
		return nil
	}
	result := make(anchoring.Chain, 0, len(recs))
	for _, r := range recs {
		result = append(result, r.New)
	}
	return result
}

// Append implements anchoring.Store.Append.
func (s *Store) Append(_ context.Context, id string, rec anchoring.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok := s.chain(id).Head()
	if !rec.Follows(head, ok) {
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}
	s.records[id] = append(s.records[id], rec)
	return nil
}

// Records implements store.RecordLister.
func (s *Store) Records(_ context.Context, id string) ([]anchoring.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]anchoring.Record, len(s.records[id]))
	copy(result, s.records[id])
	return result, nil
}

// ListAnchors implements anchoring.Store.ListAnchors.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string) error) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	index := sort.Search(len(ids), func(n int) bool {
		return ids[n] > start
	})

	for i := index; i < len(ids); i++ {
		err := f(ids[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (anchoring.Store, error) {
		return New(), nil
	})
}
