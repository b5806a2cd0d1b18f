package bt

import (
	"context"
	"testing"

	"cloud.google.com/go/bigtable"
	"cloud.google.com/go/bigtable/bttest"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"
	"google.golang.org/grpc"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/testutil"
)

func TestKeys(t *testing.T) {
	cases := []struct {
		id  string
		seq int
	}{
		{id: "a", seq: 1},
		{id: "with/slash:and colon", seq: 42},
		{id: "ünïcödé", seq: 7},
	}
	for _, c := range cases {
		key := anchorKey(c.id, c.seq)
		id, seq, err := idSeqFromKey(key)
		if err != nil {
			t.Fatal(err)
		}
		if id != c.id || seq != c.seq {
			t.Errorf("got %q/%d from %s, want %q/%d", id, seq, key, c.id, c.seq)
		}
	}

	// An identifier's rows sort before those of its extensions.
	if !(anchorKey("a", 99) < anchorKey("ab", 1)) {
		t.Error("key order does not follow identifier order")
	}
}

func withTestStore(ctx context.Context, t *testing.T, fn func(*Store)) {
	srv, err := bttest.NewServer("localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	admin, err := bigtable.NewAdminClient(ctx, "project", "instance", option.WithGRPCConn(conn))
	if err != nil {
		t.Fatal(err)
	}
	if err := CreateTable(ctx, admin, "anchors"); err != nil {
		t.Fatal(err)
	}

	client, err := bigtable.NewClient(ctx, "project", "instance", option.WithGRPCConn(conn))
	if err != nil {
		t.Fatal(err)
	}

	fn(New(client.Open("anchors")))
}

func TestChains(t *testing.T) {
	ctx := context.Background()
	withTestStore(ctx, t, func(s *Store) {
		testutil.Chains(ctx, t, s)
	})
}

func TestRace(t *testing.T) {
	ctx := context.Background()
	withTestStore(ctx, t, func(s *Store) {
		testutil.Race(ctx, t, s, 8)
	})
}

func TestPrefixIdentifiers(t *testing.T) {
	ctx := context.Background()
	withTestStore(ctx, t, func(s *Store) {
		ids := []string{"ab", "a", "b", "abc"}
		for _, id := range ids {
			if err := s.Append(ctx, id, anchoring.NewRecord("", "h1")); err != nil {
				t.Fatal(err)
			}
		}
		if err := s.Append(ctx, "a", anchoring.NewRecord("h1", "h2")); err != nil {
			t.Fatal(err)
		}

		var got []string
		err := s.ListAnchors(ctx, "a", func(id string) error {
			got = append(got, id)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"ab", "abc", "b"}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}
