// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = &Store{}

type Store struct {
	s anchoring.Store
}

func New(s anchoring.Store) *Store {
	return &Store{s: s}
}

func (s *Store) Versions(ctx context.Context, id string) (anchoring.Chain, error) {
	chain, err := s.s.Versions(ctx, id)
	if err != nil {
		log.Printf("ERROR in Versions(%s): %s", id, err)
	} else {
		log.Printf("Versions(%s): %d version(s)", id, len(chain))
	}
	return chain, err
}

func (s *Store) Append(ctx context.Context, id string, rec anchoring.Record) error {
	last := "<none>"
	if rec.Last != nil {
		last = string(*rec.Last)
	}
	err := s.s.Append(ctx, id, rec)
	if err != nil {
		log.Printf("ERROR in Append(%s, %s -> %s): %s", id, last, rec.New, err)
	} else {
		log.Printf("Append(%s, %s -> %s)", id, last, rec.New)
	}
	return err
}

func (s *Store) ListAnchors(ctx context.Context, start string, f func(string) error) error {
	log.Printf("ListAnchors, start=%s", start)
	return s.s.ListAnchors(ctx, start, func(id string) error {
		err := f(id)
		if err != nil {
			log.Printf("  ERROR in ListAnchors at %s: %s", id, err)
		} else {
			log.Printf("  ListAnchors: %s", id)
		}
		return err
	})
}

// Close closes the nested store, if it needs closing.
func (s *Store) Close() error {
	return store.Close(s.s)
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (anchoring.Store, error) {
		nestedStore, err := store.CreateNested(ctx, conf, "nested")
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore), nil
	})
}
