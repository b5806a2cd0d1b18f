// Package config holds the process-wide settings of the anchoring client.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// NoCache is the cache mode that disables the local bypass.
	NoCache = "no-cache"

	// DefaultFastPathDomain is the domain served by the local bypass
	// when Settings.FastPathDomain is empty.
	DefaultFastPathDomain = "vault"
)

// Settings are the process-wide settings consulted on every anchoring call.
type Settings struct {
	// Domains maps a network domain to the base URLs of its anchoring services.
	Domains map[string][]string `json:"domains" yaml:"domains"`

	// BDNS names a BDNS hosts file supplying further domains.
	BDNS string `json:"bdns" yaml:"bdns"`

	// CacheMode selects the local bypass for the fast-path domain.
	// Empty or NoCache disables it.
	// Any other value names the store type (see package store) backing the bypass,
	// configured by CacheStore.
	CacheMode  string                 `json:"cacheMode" yaml:"cacheMode"`
	CacheStore map[string]interface{} `json:"cacheStore" yaml:"cacheStore"`

	FastPathDomain string `json:"fastPathDomain" yaml:"fastPathDomain"`

	// Timeout bounds each anchoring call as a whole.
	// Zero means no bound beyond the caller's context.
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// Bypassed tells whether calls for the given domain go to the local bypass.
func (s Settings) Bypassed(domain string) bool {
	if s.CacheMode == "" || s.CacheMode == NoCache {
		return false
	}
	fast := s.FastPathDomain
	if fast == "" {
		fast = DefaultFastPathDomain
	}
	return domain == fast
}

// Source supplies the current settings.
type Source interface {
	Settings() Settings
}

// Static is a Source whose settings never change.
type Static Settings

// Settings implements Source.
func (s Static) Settings() Settings {
	return Settings(s)
}

// Load reads settings from a file.
// Files named *.yaml or *.yml are parsed as YAML,
// anything else as JSON.
func Load(filename string) (Settings, error) {
	var s Settings
	err := decodeFile(filename, &s)
	return s, err
}

// LoadMap reads a file, as Load does, into a generic map.
// Numbers in JSON files decode as json.Number,
// numbers in YAML files as int or float64.
// It is for store configurations (see store.Create).
func LoadMap(filename string) (map[string]interface{}, error) {
	var m map[string]interface{}
	err := decodeFile(filename, &m)
	return m, err
}

func decodeFile(filename string, v interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(f).Decode(v)
	default:
		dec := json.NewDecoder(f)
		dec.UseNumber()
		err = dec.Decode(v)
	}
	return errors.Wrapf(err, "decoding config file %s", filename)
}

// Duration is a time.Duration written in configuration files
// as a string like "1m30s" or as a number of seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.parse(s)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return errors.Errorf("invalid duration %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var secs float64
	if n.Tag == "!!int" || n.Tag == "!!float" {
		if err := n.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(n.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", s)
	}
	*d = Duration(v)
	return nil
}
