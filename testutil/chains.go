// Package testutil holds helpers shared by the tests of anchoring.Store implementations.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skutner/anchoring"
)

// Chains permits testing an anchoring.Store implementation
// by appending records to a few anchors,
// some of them conflicting,
// then checking the resulting chains and the list of anchors.
// The store must be empty.
func Chains(ctx context.Context, t *testing.T, store anchoring.Store) {
	const (
		a1 = "anchor1"
		a2 = "anchor2"
		a3 = "anchor3"

		h1 = anchoring.Pointer("h1")
		h2 = anchoring.Pointer("h2")
		h3 = anchoring.Pointer("h3")
	)

	cases := []struct {
		id      string
		rec     anchoring.Record
		wantErr error
	}{
		{id: a1, rec: anchoring.NewRecord("", h1)},
		{id: a1, rec: anchoring.NewRecord("", h2), wantErr: anchoring.ErrConflict},
		{id: a1, rec: anchoring.NewRecord(h1, h2)},
		{id: a1, rec: anchoring.NewRecord(h1, h3), wantErr: anchoring.ErrConflict},
		{id: a1, rec: anchoring.NewRecord(h3, h3), wantErr: anchoring.ErrConflict},
		{id: a2, rec: anchoring.NewRecord(h1, h2), wantErr: anchoring.ErrConflict},
		{id: a2, rec: anchoring.Record{New: h3, ZKPValue: []byte(`{"v":1}`), DigitalProof: []byte(`"sig"`)}},
		{id: a1, rec: anchoring.NewRecord(h2, h3)},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			err := store.Append(ctx, c.id, c.rec)
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("got error %v, want %v", err, c.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
		})
	}

	checkChain(ctx, t, store, a1, anchoring.Chain{h1, h2, h3})
	checkChain(ctx, t, store, a2, anchoring.Chain{h3})
	checkChain(ctx, t, store, a3, nil)

	var got []string
	err := store.ListAnchors(ctx, "", func(id string) error {
		got = append(got, id)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{a1, a2}, got); diff != "" {
		t.Errorf("ListAnchors mismatch (-want +got):\n%s", diff)
	}

	got = nil
	err = store.ListAnchors(ctx, a1, func(id string) error {
		got = append(got, id)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{a2}, got); diff != "" {
		t.Errorf("ListAnchors after %s mismatch (-want +got):\n%s", a1, diff)
	}
}

func checkChain(ctx context.Context, t *testing.T, store anchoring.Store, id string, want anchoring.Chain) {
	t.Helper()

	got, err := store.Versions(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chain %s mismatch (-want +got):\n%s", id, diff)
	}
}

// Race permits testing that an anchoring.Store implementation
// serializes concurrent appends:
// n writers all try to append atop the same (empty) head,
// and exactly one of them must win.
func Race(ctx context.Context, t *testing.T, store anchoring.Store, n int) {
	const id = "contended"

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		conflicts int
	)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Append(ctx, id, anchoring.NewRecord("", anchoring.Pointer(fmt.Sprintf("w%d", i))))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				accepted++
			case errors.Is(err, anchoring.ErrConflict):
				conflicts++
			default:
				t.Errorf("writer %d: %s", i, err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("got %d accepted writes, want 1", accepted)
	}
	if accepted+conflicts != n {
		t.Errorf("got %d accepted and %d conflicting writes, want %d total", accepted, conflicts, n)
	}

	chain, err := store.Versions(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 1 {
		t.Errorf("got chain %v, want exactly one version", chain)
	}
}
