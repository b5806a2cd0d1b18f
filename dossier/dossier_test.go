package dossier

import (
	"context"
	"encoding/json"
	stderrs "errors"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/client"
	"github.com/skutner/anchoring/config"
	"github.com/skutner/anchoring/locator"
	"github.com/skutner/anchoring/service"
	"github.com/skutner/anchoring/store/mem"
)

func newAnchorer(t *testing.T) (anchoring.Anchorer, *mem.Store) {
	s := mem.New()
	srv := httptest.NewServer(service.NewServer(s))
	t.Cleanup(srv.Close)
	return client.New(locator.Static{"d": {srv.URL}}, config.Static{}, nil), s
}

func TestCommit(t *testing.T) {
	var (
		ctx  = context.Background()
		a, s = newAnchorer(t)
		key  = anchoring.Key{Domain: "d", ID: "doc"}
	)

	d1 := New(a, key)
	if _, ok := d1.Head(); ok {
		t.Error("new dossier claims to know a head")
	}

	if _, err := d1.Commit(ctx, "h1"); err != nil {
		t.Fatal(err)
	}
	if _, err := d1.Commit(ctx, "h2", DigitalProof(json.RawMessage(`"sig"`))); err != nil {
		t.Fatal(err)
	}
	if head, _ := d1.Head(); head != "h2" {
		t.Errorf("got head %s, want h2", head)
	}

	// A second handle that saw h2 goes stale once d1 commits h3.
	d2 := New(a, key)
	if _, err := d2.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := d1.Commit(ctx, "h3"); err != nil {
		t.Fatal(err)
	}

	_, err := d2.Commit(ctx, "h4")
	if !stderrs.Is(err, anchoring.ErrConflict) {
		t.Fatalf("got error %v, want %v", err, anchoring.ErrConflict)
	}
	if head, _ := d2.Head(); head != "h2" {
		t.Errorf("head moved to %s after a conflict", head)
	}

	chain, err := d2.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(anchoring.Chain{"h1", "h2", "h3"}, chain); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if _, err := d2.Commit(ctx, "h4"); err != nil {
		t.Fatal(err)
	}

	recs, err := s.Records(ctx, key.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(json.RawMessage(`"sig"`), recs[1].DigitalProof); diff != "" {
		t.Errorf("proof mismatch (-want +got):\n%s", diff)
	}
}

func TestCache(t *testing.T) {
	a, _ := newAnchorer(t)

	c, err := NewCache(a, 2)
	if err != nil {
		t.Fatal(err)
	}

	d1 := c.Load(anchoring.Key{Domain: "d", ID: "x"})
	if got := c.Load(anchoring.Key{Domain: "d", ID: "x"}); got != d1 {
		t.Error("same key produced a new handle")
	}

	d2 := c.Load(anchoring.Key{Domain: "e", ID: "x"})
	if d2 == d1 {
		t.Error("handle reused across domains")
	}
	if got := d2.Key(); got.Domain != "e" {
		t.Errorf("got domain %s, want e", got.Domain)
	}
	if got := c.Load(anchoring.Key{Domain: "e", ID: "x"}); got != d2 {
		t.Error("replacement handle was not cached")
	}

	c.Load(anchoring.Key{Domain: "d", ID: "y"})
	c.Load(anchoring.Key{Domain: "d", ID: "z"})
	if n := c.Len(); n != 2 {
		t.Errorf("got %d cached handles, want 2", n)
	}
	if got := c.Load(anchoring.Key{Domain: "e", ID: "x"}); got == d2 {
		t.Error("evicted handle was returned")
	}
}
