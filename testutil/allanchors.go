package testutil

import (
	"context"
	"math/rand"
	"reflect"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/skutner/anchoring"
)

// AllAnchors appends to a random set of anchors in an empty store
// and makes sure that the right set of identifiers comes back in a call to ListAnchors.
func AllAnchors(ctx context.Context, t *testing.T, storeFactory func() anchoring.Store) {
	if err := quick.Check(allAnchorsHelper(ctx, t, storeFactory), &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func allAnchorsHelper(ctx context.Context, t *testing.T, storeFactory func() anchoring.Store) func(idSet) bool {
	return func(ids idSet) bool {
		var (
			store = storeFactory()
			want  []string
			seen  = make(map[string]bool)
		)
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := store.Append(ctx, id, anchoring.NewRecord("", "h1")); err != nil {
				t.Fatal(err)
			}
			want = append(want, id)
		}
		var got []string
		err := store.ListAnchors(ctx, "", func(id string) error {
			got = append(got, id)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Strings(want)
		if len(want) == 0 && len(got) == 0 {
			return true
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}

// idSet is a list of short printable anchor identifiers, possibly repeating.
type idSet []string

// Generate implements quick.Generator.
func (idSet) Generate(r *rand.Rand, size int) reflect.Value {
	ids := make(idSet, r.Intn(size+1))
	for i := range ids {
		b := make([]byte, 1+r.Intn(16))
		for j := range b {
			b[j] = byte(' ' + r.Intn(95))
		}
		ids[i] = string(b)
	}
	return reflect.ValueOf(ids)
}
