// Package locator resolves network domains to anchoring-service endpoints.
package locator

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/config"
)

var (
	_ anchoring.Locator = Static(nil)
	_ anchoring.Locator = BDNS(nil)
	_ anchoring.Locator = Func(nil)
	_ anchoring.Locator = First(nil)
)

// Static is a fixed map from domain to endpoints.
type Static map[string][]string

// Locate implements anchoring.Locator.
func (s Static) Locate(_ context.Context, domain string) ([]string, error) {
	return append([]string(nil), s[domain]...), nil
}

// Func is an adapter allowing an ordinary function to be used as a Locator.
type Func func(ctx context.Context, domain string) ([]string, error)

// Locate implements anchoring.Locator.
func (f Func) Locate(ctx context.Context, domain string) ([]string, error) {
	return f(ctx, domain)
}

// FromSettings produces a Locator that consults the current settings on every call:
// first their Domains map,
// then the BDNS file they name, if any.
func FromSettings(src config.Source) Func {
	return func(ctx context.Context, domain string) ([]string, error) {
		s := src.Settings()
		if endpoints := s.Domains[domain]; len(endpoints) > 0 {
			return append([]string(nil), endpoints...), nil
		}
		if s.BDNS == "" {
			return nil, nil
		}
		b, err := LoadBDNS(s.BDNS)
		if err != nil {
			return nil, err
		}
		return b.Locate(ctx, domain)
	}
}

// First is a Locator that tries each of its Locators in turn
// and returns the first non-empty list of endpoints.
// If none produces endpoints,
// the first error encountered (if any) is returned.
type First []anchoring.Locator

// Locate implements anchoring.Locator.
func (f First) Locate(ctx context.Context, domain string) ([]string, error) {
	var firstErr error
	for _, loc := range f {
		endpoints, err := loc.Locate(ctx, domain)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(endpoints) > 0 {
			return endpoints, nil
		}
	}
	return nil, firstErr
}

// BDNS is the parsed form of a BDNS hosts document,
// which describes the services of each domain:
//
//	{
//	  "default": {
//	    "replicas": [],
//	    "brickStorages": ["http://localhost:8080"],
//	    "anchoringServices": ["http://localhost:8080"]
//	  }
//	}
type BDNS map[string]BDNSEntry

// BDNSEntry describes the services of one domain.
// Only AnchoringServices is used by this module.
type BDNSEntry struct {
	Replicas          []string `json:"replicas,omitempty"`
	BrickStorages     []string `json:"brickStorages,omitempty"`
	AnchoringServices []string `json:"anchoringServices"`
}

// ParseBDNS parses a BDNS hosts document.
func ParseBDNS(r io.Reader) (BDNS, error) {
	var b BDNS
	err := json.NewDecoder(r).Decode(&b)
	return b, errors.Wrap(err, "decoding BDNS hosts")
}

// LoadBDNS parses the BDNS hosts file at path.
func LoadBDNS(path string) (BDNS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	b, err := ParseBDNS(f)
	return b, errors.Wrapf(err, "in %s", path)
}

// Locate implements anchoring.Locator.
func (b BDNS) Locate(_ context.Context, domain string) ([]string, error) {
	return append([]string(nil), b[domain].AnchoringServices...), nil
}
