// Package file implements an anchoring store as a file hierarchy.
package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = &Store{}

// Store is a file-based implementation of an anchoring store.
// Each anchor identifier has one file holding its records as JSON.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

const suffix = ".json"

func (s *Store) anchorroot() string {
	return filepath.Join(s.root, "anchors")
}

// Anchor identifiers are arbitrary strings,
// so file names are their unpadded URL-safe base64 encoding.
func (s *Store) anchorpath(id string) string {
	return filepath.Join(s.anchorroot(), base64.RawURLEncoding.EncodeToString([]byte(id))+suffix)
}

func (s *Store) lockpath(id string) string {
	return s.anchorpath(id) + ".lock"
}

func (s *Store) lock(id string) error {
	dir := s.anchorroot()
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return errors.Wrapf(err, "ensuring path %s exists", dir)
	}
	path := s.lockpath(id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	f.Close()
	return s.flocker.Lock(path)
}

func (s *Store) unlock(id string) error {
	return s.flocker.Unlock(s.lockpath(id))
}

// File lock must be held.
func (s *Store) records(id string) ([]anchoring.Record, error) {
	path := s.anchorpath(id)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var recs []anchoring.Record
	err = json.Unmarshal(b, &recs)
	return recs, errors.Wrapf(err, "decoding %s", path)
}

// Records implements store.RecordLister.
func (s *Store) Records(_ context.Context, id string) ([]anchoring.Record, error) {
	err := s.lock(id)
	if err != nil {
		return nil, errors.Wrapf(err, "locking %s", id)
	}
	defer s.unlock(id)

	return s.records(id)
}

// Versions implements anchoring.Store.Versions.
func (s *Store) Versions(_ context.Context, id string) (anchoring.Chain, error) {
	err := s.lock(id)
	if err != nil {
		return nil, errors.Wrapf(err, "locking %s", id)
	}
	defer s.unlock(id)

	recs, err := s.records(id)
	if err != nil {
		return nil, err
	}
	var result anchoring.Chain
	for _, r := range recs {
		result = append(result, r.New)
	}
	return result, nil
}

// Append implements anchoring.Store.Append.
func (s *Store) Append(_ context.Context, id string, rec anchoring.Record) error {
	err := s.lock(id)
	if err != nil {
		return errors.Wrapf(err, "locking %s", id)
	}
	defer s.unlock(id)

	recs, err := s.records(id)
	if err != nil {
		return err
	}

	var (
		head anchoring.Pointer
		ok   = len(recs) > 0
	)
	if ok {
		head = recs[len(recs)-1].New
	}
	if !rec.Follows(head, ok) {
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}

	b, err := json.Marshal(append(recs, rec))
	if err != nil {
		return errors.Wrap(err, "encoding records")
	}

	path := s.anchorpath(id)
	tmp := path + ".tmp"
	err = os.WriteFile(tmp, b, 0644)
	if err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "renaming %s", tmp)
}

// ListAnchors implements anchoring.Store.ListAnchors.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string) error) error {
	entries, err := os.ReadDir(s.anchorroot())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.anchorroot())
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		id, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, suffix))
		if err != nil {
			continue
		}
		if string(id) > start {
			ids = append(ids, string(id))
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		err = f(id)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (anchoring.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
