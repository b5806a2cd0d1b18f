package locator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/skutner/anchoring/config"
)

const hosts = `{
  "default": {
    "replicas": [],
    "brickStorages": ["http://bricks.example"],
    "anchoringServices": ["http://a1.example", "http://a2.example"]
  },
  "empty": {
    "anchoringServices": []
  }
}`

func TestBDNS(t *testing.T) {
	ctx := context.Background()

	b, err := ParseBDNS(strings.NewReader(hosts))
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		domain string
		want   []string
	}{
		{domain: "default", want: []string{"http://a1.example", "http://a2.example"}},
		{domain: "empty"},
		{domain: "unknown"},
	}
	for _, c := range cases {
		got, err := b.Locate(ctx, c.domain)
		if err != nil {
			t.Fatal(err)
		}
		if len(c.want) == 0 && len(got) == 0 {
			continue
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("domain %s mismatch (-want +got):\n%s", c.domain, diff)
		}
	}
}

func TestStaticCopies(t *testing.T) {
	s := Static{"d": {"http://x.example"}}
	got, err := s.Locate(context.Background(), "d")
	if err != nil {
		t.Fatal(err)
	}
	got[0] = "mutated"
	if s["d"][0] != "http://x.example" {
		t.Error("caller mutation leaked into the locator")
	}
}

func TestFromSettings(t *testing.T) {
	var (
		ctx  = context.Background()
		path = filepath.Join(t.TempDir(), "bdns.hosts")
	)
	err := os.WriteFile(path, []byte(hosts), 0644)
	if err != nil {
		t.Fatal(err)
	}

	loc := FromSettings(config.Static{
		Domains: map[string][]string{"default": {"http://override.example"}, "local": {"http://l.example"}},
		BDNS:    path,
	})

	cases := []struct {
		domain string
		want   []string
	}{
		{domain: "default", want: []string{"http://override.example"}},
		{domain: "local", want: []string{"http://l.example"}},
		{domain: "other"},
	}
	for _, c := range cases {
		got, err := loc.Locate(ctx, c.domain)
		if err != nil {
			t.Fatal(err)
		}
		if len(c.want) == 0 && len(got) == 0 {
			continue
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("domain %s mismatch (-want +got):\n%s", c.domain, diff)
		}
	}
}

func TestFirst(t *testing.T) {
	var (
		ctx    = context.Background()
		boom   = errors.New("boom")
		broken = Func(func(context.Context, string) ([]string, error) { return nil, boom })
	)

	f := First{broken, Static{"a": nil}, Static{"a": {"http://a.example"}}}
	got, err := f.Locate(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"http://a.example"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	_, err = f.Locate(ctx, "b")
	if !errors.Is(err, boom) {
		t.Errorf("got error %v, want %v", err, boom)
	}
}
