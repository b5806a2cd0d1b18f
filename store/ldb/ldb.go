// Package ldb implements an anchoring store on LevelDB.
package ldb

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = &Store{}

// Store is a LevelDB-backed implementation of anchoring.Store.
// Each version of each anchor is one key,
// made of the hex-encoded anchor identifier and the version's position in its chain.
type Store struct {
	db *leveldb.DB

	mu sync.Mutex // serializes appends
}

// New produces a new Store on db.
// A LevelDB database admits one process at a time,
// so the Store is the only writer.
func New(db *leveldb.DB) *Store {
	return &Store{db: db}
}

// Close closes the database,
// releasing its lock on the directory.
func (s *Store) Close() error {
	return s.db.Close()
}

// Records returns the chain of records for id, oldest first.
func (s *Store) Records(_ context.Context, id string) ([]anchoring.Record, error) {
	iter := s.db.NewIterator(util.BytesPrefix(anchorPrefix(id)), nil)
	defer iter.Release()

	var recs []anchoring.Record
	for iter.Next() {
		var rec anchoring.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", iter.Key())
		}
		recs = append(recs, rec)
	}
	return recs, errors.Wrapf(iter.Error(), "iterating over %s", id)
}

// Versions implements anchoring.Store.Versions.
func (s *Store) Versions(ctx context.Context, id string) (anchoring.Chain, error) {
	recs, err := s.Records(ctx, id)
	if err != nil {
		return nil, err
	}
	var chain anchoring.Chain
	for _, rec := range recs {
		chain = append(chain, rec.New)
	}
	return chain, nil
}

// Append implements anchoring.Store.Append.
func (s *Store) Append(ctx context.Context, id string, rec anchoring.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, err := s.Versions(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Follows(chain.Head()) {
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	key := anchorKey(id, len(chain)+1)
	err = s.db.Put(key, val, &opt.WriteOptions{Sync: true})
	return errors.Wrapf(err, "writing %s", key)
}

// ListAnchors implements anchoring.Store.ListAnchors.
func (s *Store) ListAnchors(_ context.Context, start string, f func(string) error) error {
	// Keys of identifiers after start sort at or after this one.
	r := &util.Range{
		Start: []byte("a:" + hex.EncodeToString([]byte(start)) + "0"),
		Limit: []byte("a;"),
	}
	iter := s.db.NewIterator(r, nil)
	defer iter.Release()

	var lastID string
	for iter.Next() {
		id, err := idFromKey(string(iter.Key()))
		if err != nil {
			return errors.Wrapf(err, "parsing key %s", iter.Key())
		}
		if id == lastID {
			continue
		}
		lastID = id
		if err := f(id); err != nil {
			return err
		}
	}
	return iter.Error()
}

// The separator sorts before every hex digit,
// so the keys of an identifier precede those of its extensions.
func anchorKey(id string, seq int) []byte {
	return []byte(fmt.Sprintf("a:%x/%020d", id, seq))
}

func anchorPrefix(id string) []byte {
	return []byte(fmt.Sprintf("a:%x/", id))
}

func idFromKey(key string) (string, error) {
	rest := strings.TrimPrefix(key, "a:")
	hexID, _, ok := strings.Cut(rest, "/")
	if !ok || rest == key {
		return "", errors.New("malformed key")
	}
	id, err := hex.DecodeString(hexID)
	return string(id), errors.Wrap(err, "decoding identifier")
}

func init() {
	store.Register("leveldb", func(_ context.Context, conf map[string]interface{}) (anchoring.Store, error) {
		dir, ok := conf["dir"].(string)
		if !ok {
			return nil, errors.New(`missing "dir" parameter`)
		}
		db, err := leveldb.OpenFile(dir, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", dir)
		}
		return New(db), nil
	})
}
