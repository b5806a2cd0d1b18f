// Package dossier keeps handles on anchored resources
// that remember the head they last saw.
package dossier

import (
	"context"
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
)

// Dossier is a handle on the version chain of one key.
// It tracks the last head it observed
// and uses it as the expected head of its next commit.
type Dossier struct {
	a   anchoring.Anchorer
	key anchoring.Key

	mu    sync.Mutex
	head  anchoring.Pointer
	known bool
}

// New produces a new Dossier for key,
// reading and writing versions through a.
// It knows no head until Refresh or Commit is called.
func New(a anchoring.Anchorer, key anchoring.Key) *Dossier {
	return &Dossier{a: a, key: key}
}

// Key returns the key of d.
func (d *Dossier) Key() anchoring.Key {
	return d.key
}

// Head returns the last head observed by d.
// The boolean is false if d has not yet observed the chain
// or observed it empty.
func (d *Dossier) Head() (anchoring.Pointer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.head, d.known && d.head != ""
}

// Refresh re-reads the chain and records its head.
func (d *Dossier) Refresh(ctx context.Context) (anchoring.Chain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refresh(ctx)
}

func (d *Dossier) refresh(ctx context.Context) (anchoring.Chain, error) {
	chain, err := d.a.Versions(ctx, d.key)
	if err != nil {
		return nil, errors.Wrapf(err, "getting versions of %s", d.key)
	}
	d.head, _ = chain.Head()
	d.known = true
	return chain, nil
}

// Proof attaches a proof to a commit.
type Proof func(*anchoring.Record)

// ZKP attaches a zero-knowledge-proof value to a commit.
func ZKP(v json.RawMessage) Proof {
	return func(rec *anchoring.Record) { rec.ZKPValue = v }
}

// DigitalProof attaches a signature to a commit.
func DigitalProof(v json.RawMessage) Proof {
	return func(rec *anchoring.Record) { rec.DigitalProof = v }
}

// Commit makes p the new head,
// expecting the current head to be the one d last observed
// (reading the chain first if d has observed nothing).
// On success the head of d advances to p
// and the confirmation of the accepting service is returned.
// If the chain has moved on,
// the error satisfies errors.Is(err, anchoring.ErrConflict),
// the head of d is unchanged,
// and the caller may Refresh and try again.
func (d *Dossier) Commit(ctx context.Context, p anchoring.Pointer, proofs ...Proof) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.known {
		if _, err := d.refresh(ctx); err != nil {
			return nil, err
		}
	}

	rec := anchoring.NewRecord(d.head, p)
	for _, proof := range proofs {
		proof(&rec)
	}

	body, err := d.a.AddVersion(ctx, d.key, rec)
	if err != nil {
		return nil, err
	}
	d.head = p
	return body, nil
}

// Cache holds recently used Dossiers, keyed by anchor identifier.
type Cache struct {
	a anchoring.Anchorer

	mu sync.Mutex
	c  *lru.Cache
}

// NewCache produces a new Cache holding up to size Dossiers.
func NewCache(a anchoring.Anchorer, size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating LRU cache")
	}
	return &Cache{a: a, c: c}, nil
}

// Load returns the Dossier for key.
// A cached Dossier for the same identifier is reused
// only if it belongs to the same domain;
// otherwise it is replaced.
func (c *Cache) Load(key anchoring.Key) *Dossier {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.c.Get(key.ID); ok {
		if d := v.(*Dossier); d.key.Domain == key.Domain {
			return d
		}
	}
	d := New(c.a, key)
	c.c.Add(key.ID, d)
	return d
}

// Len tells how many Dossiers are cached.
func (c *Cache) Len() int {
	return c.c.Len()
}
