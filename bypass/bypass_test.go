package bypass

import (
	"context"
	"encoding/json"
	stderrs "errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/config"
	"github.com/skutner/anchoring/store/file"
	_ "github.com/skutner/anchoring/store/ldb"
	"github.com/skutner/anchoring/store/mem"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(mem.New())

	cases := []struct {
		id       string
		p        anchoring.Pointer
		wantLast *anchoring.Pointer
		want     anchoring.Chain
	}{
		{id: "a", p: "h1", want: anchoring.Chain{"h1"}},
		{id: "a", p: "h2", wantLast: ptr("h1"), want: anchoring.Chain{"h1", "h2"}},
		{id: "b", p: "h1", want: anchoring.Chain{"h1"}},
		{id: "a", p: "h3", wantLast: ptr("h2"), want: anchoring.Chain{"h1", "h2", "h3"}},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			body, err := l.WriteVersion(ctx, c.id, c.p)
			if err != nil {
				t.Fatal(err)
			}
			var rec anchoring.Record
			if err := json.Unmarshal(body, &rec); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(anchoring.Record{Last: c.wantLast, New: c.p}, rec); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}

			got, err := l.ReadVersions(ctx, c.id)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("chain mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLocalConcurrentWriters(t *testing.T) {
	const n = 16

	var (
		ctx = context.Background()
		l   = NewLocal(mem.New())
		wg  sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.WriteVersion(ctx, "a", anchoring.Pointer(fmt.Sprintf("h%d", i))); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := l.ReadVersions(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != n {
		t.Errorf("got %d versions, want %d", len(got), n)
	}
}

type settingsVar struct {
	mu sync.Mutex
	s  config.Settings
}

func (v *settingsVar) Settings() config.Settings {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.s
}

func (v *settingsVar) set(s config.Settings) {
	v.mu.Lock()
	v.s = s
	v.mu.Unlock()
}

func TestSwitch(t *testing.T) {
	var (
		ctx  = context.Background()
		root = filepath.Join(t.TempDir(), "cache")
		src  = &settingsVar{}
		sw   = NewSwitch(src)
	)

	_, err := sw.ReadVersions(ctx, "a")
	if !stderrs.Is(err, ErrDisabled) {
		t.Errorf("got error %v, want %v", err, ErrDisabled)
	}

	src.set(config.Settings{CacheMode: "mem"})
	if _, err := sw.WriteVersion(ctx, "a", "h1"); err != nil {
		t.Fatal(err)
	}
	checkChain(ctx, t, sw, "a", anchoring.Chain{"h1"})

	// Same settings, same store.
	if _, err := sw.WriteVersion(ctx, "a", "h2"); err != nil {
		t.Fatal(err)
	}
	checkChain(ctx, t, sw, "a", anchoring.Chain{"h1", "h2"})

	src.set(config.Settings{CacheMode: "file", CacheStore: map[string]interface{}{"root": root}})
	checkChain(ctx, t, sw, "a", nil)
	if _, err := sw.WriteVersion(ctx, "a", "h3"); err != nil {
		t.Fatal(err)
	}

	got, err := file.New(root).Versions(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(anchoring.Chain{"h3"}, got); diff != "" {
		t.Errorf("file store mismatch (-want +got):\n%s", diff)
	}

	src.set(config.Settings{CacheMode: config.NoCache})
	if _, err := sw.WriteVersion(ctx, "a", "h4"); !stderrs.Is(err, ErrDisabled) {
		t.Errorf("got error %v, want %v", err, ErrDisabled)
	}

	src.set(config.Settings{CacheMode: "nonesuch"})
	if _, err := sw.ReadVersions(ctx, "a"); err == nil {
		t.Error("got no error for an unknown cache mode")
	}
}

func TestSwitchReleasesStore(t *testing.T) {
	var (
		ctx    = context.Background()
		dir    = filepath.Join(t.TempDir(), "ldb")
		src    = &settingsVar{}
		sw     = NewSwitch(src)
		ldbSet = config.Settings{CacheMode: "leveldb", CacheStore: map[string]interface{}{"dir": dir}}
	)

	src.set(ldbSet)
	if _, err := sw.WriteVersion(ctx, "a", "h1"); err != nil {
		t.Fatal(err)
	}

	src.set(config.Settings{CacheMode: "mem"})
	checkChain(ctx, t, sw, "a", nil)

	src.set(ldbSet)
	checkChain(ctx, t, sw, "a", anchoring.Chain{"h1"})
	if _, err := sw.WriteVersion(ctx, "a", "h2"); err != nil {
		t.Fatal(err)
	}
	checkChain(ctx, t, sw, "a", anchoring.Chain{"h1", "h2"})

	src.set(config.Settings{CacheMode: "mem"})
	checkChain(ctx, t, sw, "a", nil)
}

func TestSwitchUsing(t *testing.T) {
	var (
		ctx = context.Background()
		src = &settingsVar{}
		sw  = NewSwitch(src)
		on  = config.Settings{CacheMode: "mem"}
	)

	if _, err := sw.Using(on).WriteVersion(ctx, "a", "h1"); err != nil {
		t.Fatal(err)
	}
	checkChain(ctx, t, sw.Using(on), "a", anchoring.Chain{"h1"})

	if _, err := sw.ReadVersions(ctx, "a"); !stderrs.Is(err, ErrDisabled) {
		t.Errorf("got error %v, want %v", err, ErrDisabled)
	}
}

func checkChain(ctx context.Context, t *testing.T, b anchoring.Bypass, id string, want anchoring.Chain) {
	t.Helper()

	got, err := b.ReadVersions(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func ptr(p anchoring.Pointer) *anchoring.Pointer {
	return &p
}
