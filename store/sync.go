package store

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/skutner/anchoring"
)

// RecordLister is implemented by stores that can return
// the full records of a chain,
// proof fields included.
type RecordLister interface {
	Records(context.Context, string) ([]anchoring.Record, error)
}

// Sync fast-forwards two or more stores.
// It runs ListAnchors on all input stores.
// For each anchor identifier found,
// the longest chain among the stores is appended to every store
// whose chain is a strict prefix of it.
//
// Records are copied with their proof fields
// when the store holding the longest chain is a RecordLister,
// and without them otherwise.
//
// Chains that are not prefixes of the longest one have diverged.
// Sync leaves them alone and reports them in its error
// after processing all other identifiers.
func Sync(ctx context.Context, stores []anchoring.Store) error {
	if len(stores) < 2 {
		return nil
	}

	lists := make([][]string, len(stores))

	eg, ctx2 := errgroup.WithContext(ctx)
	for i, s := range stores {
		i, s := i, s
		eg.Go(func() error {
			return s.ListAnchors(ctx2, "", func(id string) error {
				lists[i] = append(lists[i], id)
				return nil
			})
		})
	}
	err := eg.Wait()
	if err != nil {
		return errors.Wrap(err, "listing anchors")
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var diverged []string
	for _, id := range ids {
		ok, err := syncAnchor(ctx, stores, id)
		if err != nil {
			return errors.Wrapf(err, "syncing %s", id)
		}
		if !ok {
			diverged = append(diverged, id)
		}
	}
	if len(diverged) > 0 {
		return errors.Errorf("divergent chains for %s", strings.Join(diverged, ", "))
	}
	return nil
}

// The boolean result is false if some store's chain has diverged.
func syncAnchor(ctx context.Context, stores []anchoring.Store, id string) (bool, error) {
	chains := make([]anchoring.Chain, len(stores))

	eg, ctx2 := errgroup.WithContext(ctx)
	for i, s := range stores {
		i, s := i, s
		eg.Go(func() error {
			chain, err := s.Versions(ctx2, id)
			chains[i] = chain
			return err
		})
	}
	err := eg.Wait()
	if err != nil {
		return false, errors.Wrap(err, "getting versions")
	}

	var best int
	for i, chain := range chains {
		if len(chain) > len(chains[best]) {
			best = i
		}
	}
	longest := chains[best]

	var recs []anchoring.Record
	if rl, ok := stores[best].(RecordLister); ok {
		recs, err = rl.Records(ctx, id)
		if err != nil {
			return false, errors.Wrap(err, "getting records")
		}
	}

	ok := true
	for i, chain := range chains {
		if len(chain) == len(longest) {
			if !longest.HasPrefix(chain) {
				ok = false
			}
			continue
		}
		if !longest.HasPrefix(chain) {
			ok = false
			continue
		}
		for j := len(chain); j < len(longest); j++ {
			rec := anchoring.NewRecord("", longest[j])
			if j < len(recs) && recs[j].New == longest[j] {
				rec = recs[j]
			}
			if j > 0 {
				last := longest[j-1]
				rec.Last = &last
			} else {
				rec.Last = nil
			}
			err = stores[i].Append(ctx, id, rec)
			if err != nil {
				return false, errors.Wrapf(err, "appending %s", longest[j])
			}
		}
	}
	return ok, nil
}
