package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const jsonConf = `{
  "domains": {"default": ["http://a.example", "http://b.example"]},
  "cacheMode": "mem",
  "cacheStore": {"size": 10},
  "timeout": "1m30s"
}`

const yamlConf = `
domains:
  default:
    - http://a.example
    - http://b.example
cacheMode: mem
cacheStore:
  size: 10
timeout: 90
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		text string
	}{
		{name: "conf.json", text: jsonConf},
		{name: "conf.yaml", text: yamlConf},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(dir, c.name)
			err := os.WriteFile(path, []byte(c.text), 0644)
			if err != nil {
				t.Fatal(err)
			}

			got, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(map[string][]string{"default": {"http://a.example", "http://b.example"}}, got.Domains); diff != "" {
				t.Errorf("domains mismatch (-want +got):\n%s", diff)
			}
			if got.CacheMode != "mem" {
				t.Errorf("got cache mode %q, want mem", got.CacheMode)
			}
			if _, ok := got.CacheStore["size"]; !ok {
				t.Errorf("cache store config lacks size: %v", got.CacheStore)
			}
			if time.Duration(got.Timeout) != 90*time.Second {
				t.Errorf("got timeout %s, want 1m30s", time.Duration(got.Timeout))
			}
		})
	}
}

func TestLoadMap(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		text string
		want map[string]interface{}
	}{
		{
			name: "store.json",
			text: `{"type": "lru", "size": 8, "nested": {"type": "mem"}}`,
			want: map[string]interface{}{
				"type":   "lru",
				"size":   json.Number("8"),
				"nested": map[string]interface{}{"type": "mem"},
			},
		},
		{
			name: "store.yml",
			text: "type: lru\nsize: 8\nnested:\n  type: mem\n",
			want: map[string]interface{}{
				"type":   "lru",
				"size":   8,
				"nested": map[string]interface{}{"type": "mem"},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(dir, c.name)
			if err := os.WriteFile(path, []byte(c.text), 0644); err != nil {
				t.Fatal(err)
			}
			got, err := LoadMap(path)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	if err == nil {
		t.Error("got no error for missing file")
	}

	path := filepath.Join(dir, "bad.json")
	err = os.WriteFile(path, []byte(`{"timeout": "soon"}`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Load(path)
	if err == nil {
		t.Error("got no error for bad duration")
	}
}

func TestBypassed(t *testing.T) {
	cases := []struct {
		s      Settings
		domain string
		want   bool
	}{
		{s: Settings{}, domain: "vault", want: false},
		{s: Settings{CacheMode: NoCache}, domain: "vault", want: false},
		{s: Settings{CacheMode: "mem"}, domain: "vault", want: true},
		{s: Settings{CacheMode: "mem"}, domain: "default", want: false},
		{s: Settings{CacheMode: "mem", FastPathDomain: "local"}, domain: "local", want: true},
		{s: Settings{CacheMode: "mem", FastPathDomain: "local"}, domain: "vault", want: false},
	}
	for i, c := range cases {
		if got := c.s.Bypassed(c.domain); got != c.want {
			t.Errorf("case %d: got %v, want %v", i+1, got, c.want)
		}
	}
}

func TestWatch(t *testing.T) {
	var (
		dir  = t.TempDir()
		path = filepath.Join(dir, "conf.json")
	)

	err := os.WriteFile(path, []byte(`{"cacheMode": "no-cache"}`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	w, err := Watch(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if got := w.Settings().CacheMode; got != NoCache {
		t.Fatalf("got cache mode %q, want %q", got, NoCache)
	}

	// Replace the file the way editors do.
	tmp := filepath.Join(dir, "conf.json.tmp")
	err = os.WriteFile(tmp, []byte(`{"cacheMode": "mem"}`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	err = os.Rename(tmp, path)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.Settings().CacheMode != "mem" {
		if time.Now().After(deadline) {
			t.Fatal("settings were not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
