package store

import (
	"context"
	"fmt"
	"io"

	"github.com/skutner/anchoring"
)

// Factory creates an anchoring.Store from a configuration map.
type Factory func(context.Context, map[string]interface{}) (anchoring.Store, error)

var registry = make(map[string]Factory)

// Register makes a store type available to Create.
// It is normally called from the init function of the package implementing the store.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create produces a store of the registered type named by key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (anchoring.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// CreateNested produces the store described by conf[param],
// which must be a map with a "type" entry.
// It is for store types that wrap another store.
func CreateNested(ctx context.Context, conf map[string]interface{}, param string) (anchoring.Store, error) {
	nested, ok := conf[param].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf(`missing %q parameter`, param)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, fmt.Errorf(`%q parameter missing "type"`, param)
	}
	return Create(ctx, nestedType, nested)
}

// IntParam reads the integer conf[param].
// Maps decoded from JSON with UseNumber hold json.Number,
// maps decoded from YAML hold int.
func IntParam(conf map[string]interface{}, param string) (int, error) {
	switch v := conf[param].(type) {
	case int:
		return v, nil
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("parsing %q parameter %v: %w", param, v, err)
		}
		return int(n), nil
	case nil:
		return 0, fmt.Errorf(`missing %q parameter`, param)
	}
	return 0, fmt.Errorf(`%q parameter is not an integer`, param)
}

// Close closes s if it holds resources (that is, if it is an io.Closer).
func Close(s anchoring.Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
