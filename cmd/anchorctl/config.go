package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/config"
	"github.com/skutner/anchoring/store"
)

// storeFromConfig creates the store described by a JSON or YAML file.
// The file's "type" entry names the store type;
// the remaining entries configure it.
func storeFromConfig(ctx context.Context, filename string) (anchoring.Store, error) {
	conf, err := config.LoadMap(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading store config")
	}

	typ, ok := conf["type"].(string)
	if !ok {
		return nil, errors.Errorf("store config file %s missing `type` parameter", filename)
	}

	return store.Create(ctx, typ, conf)
}
