// Package bypass implements the same-process substitute
// for the anchoring services of the fast-path domain.
package bypass

import (
	"context"
	"encoding/json"
	"log"
	"reflect"
	"sync"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/config"
	"github.com/skutner/anchoring/store"
)

var (
	_ anchoring.Bypass = &Local{}
	_ anchoring.Bypass = &Switch{}
)

// ErrDisabled is the error produced by a Switch
// when the current settings select no cache mode.
var ErrDisabled = errors.New("local cache disabled")

// Local is a Bypass over a single store.
// Writes always land on top of the current head.
type Local struct {
	mu sync.Mutex
	s  anchoring.Store
}

// NewLocal produces a new Local backed by s.
func NewLocal(s anchoring.Store) *Local {
	return &Local{s: s}
}

// ReadVersions implements anchoring.Bypass.
func (l *Local) ReadVersions(ctx context.Context, id string) (anchoring.Chain, error) {
	return l.s.Versions(ctx, id)
}

// WriteVersion implements anchoring.Bypass.
// It returns the JSON encoding of the record it appended.
func (l *Local) WriteVersion(ctx context.Context, id string, p anchoring.Pointer) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chain, err := l.s.Versions(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting versions of %s", id)
	}
	head, _ := chain.Head()
	rec := anchoring.NewRecord(head, p)
	if err := l.s.Append(ctx, id, rec); err != nil {
		return nil, errors.Wrapf(err, "appending %s to %s", p, id)
	}
	return json.Marshal(rec)
}

// Switch is a Bypass that follows the cache mode of the current settings.
// The cache mode names the store type (see store.Create)
// and CacheStore configures it.
// The store is created on first use
// and recreated whenever either setting changes,
// closing the store it replaces.
type Switch struct {
	src config.Source

	mu    sync.Mutex
	mode  string
	conf  map[string]interface{}
	local *Local
}

// NewSwitch produces a new Switch reading its settings from src.
func NewSwitch(src config.Source) *Switch {
	return &Switch{src: src}
}

// ReadVersions implements anchoring.Bypass.
func (sw *Switch) ReadVersions(ctx context.Context, id string) (anchoring.Chain, error) {
	return sw.Using(sw.src.Settings()).ReadVersions(ctx, id)
}

// WriteVersion implements anchoring.Bypass.
func (sw *Switch) WriteVersion(ctx context.Context, id string, p anchoring.Pointer) ([]byte, error) {
	return sw.Using(sw.src.Settings()).WriteVersion(ctx, id, p)
}

// Using returns a Bypass that consults the given settings
// in place of the settings source of sw.
// A caller that has already read the settings
// uses it to make the whole call under one reading.
func (sw *Switch) Using(s config.Settings) anchoring.Bypass {
	return bound{sw: sw, s: s}
}

type bound struct {
	sw *Switch
	s  config.Settings
}

func (b bound) ReadVersions(ctx context.Context, id string) (anchoring.Chain, error) {
	l, err := b.sw.current(ctx, b.s)
	if err != nil {
		return nil, err
	}
	return l.ReadVersions(ctx, id)
}

func (b bound) WriteVersion(ctx context.Context, id string, p anchoring.Pointer) ([]byte, error) {
	l, err := b.sw.current(ctx, b.s)
	if err != nil {
		return nil, err
	}
	return l.WriteVersion(ctx, id, p)
}

func (sw *Switch) current(ctx context.Context, s config.Settings) (*Local, error) {
	if s.CacheMode == "" || s.CacheMode == config.NoCache {
		return nil, ErrDisabled
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.local != nil && sw.mode == s.CacheMode && reflect.DeepEqual(sw.conf, s.CacheStore) {
		return sw.local, nil
	}

	// The new store may need resources the old one holds,
	// such as the lock on a LevelDB directory.
	if sw.local != nil {
		if err := store.Close(sw.local.s); err != nil {
			log.Printf("ERROR closing %s store of the local cache: %s", sw.mode, err)
		}
		sw.mode, sw.conf, sw.local = "", nil, nil
	}

	st, err := store.Create(ctx, s.CacheMode, s.CacheStore)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s cache", s.CacheMode)
	}
	log.Printf("using %s store for the local cache", s.CacheMode)

	sw.mode, sw.conf, sw.local = s.CacheMode, s.CacheStore, NewLocal(st)
	return sw.local, nil
}
