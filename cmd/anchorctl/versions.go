package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
)

func (c maincmd) versions(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: versions DOMAIN:ID")
	}

	key, err := anchoring.ParseKey(fs.Arg(0))
	if err != nil {
		return err
	}

	chain, err := c.client.Versions(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "getting versions of %s", key)
	}
	for _, p := range chain {
		fmt.Println(p)
	}
	return nil
}
