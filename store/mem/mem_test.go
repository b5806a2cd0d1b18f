package mem

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/testutil"
)

func TestChains(t *testing.T) {
	testutil.Chains(context.Background(), t, New())
}

func TestRace(t *testing.T) {
	testutil.Race(context.Background(), t, New(), 16)
}

func TestAllAnchors(t *testing.T) {
	testutil.AllAnchors(context.Background(), t, func() anchoring.Store { return New() })
}

func TestRecordsKeepProofs(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := anchoring.Record{
		New:          "h1",
		ZKPValue:     []byte(`{"zkp":true}`),
		DigitalProof: []byte(`"signature"`),
	}
	err := s.Append(ctx, "a", rec)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Records(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]anchoring.Record{rec}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
