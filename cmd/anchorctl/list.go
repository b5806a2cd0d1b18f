package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"
)

func (c maincmd) list(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		conf  = fs.String("store", "", "path to store config file (JSON)")
		start = fs.String("start", "", "start after this anchor identifier")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *conf == "" {
		return errors.New("-store is required")
	}

	s, err := storeFromConfig(ctx, *conf)
	if err != nil {
		return errors.Wrap(err, "creating store")
	}

	return s.ListAnchors(ctx, *start, func(id string) error {
		fmt.Println(id)
		return nil
	})
}
