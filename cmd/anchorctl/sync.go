package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() < 2 {
		return errors.New("usage: sync STORECONF STORECONF...")
	}

	var stores []anchoring.Store
	for _, arg := range fs.Args() {
		s, err := storeFromConfig(ctx, arg)
		if err != nil {
			return errors.Wrapf(err, "reading %s", arg)
		}
		stores = append(stores, s)
	}

	return store.Sync(ctx, stores)
}
