package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/dossier"
)

func (c maincmd) add(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		newPtr = fs.String("new", "", "pointer to the new version")
		file   = fs.String("file", "", "compute the new pointer from the contents of this file")
		last   = fs.String("last", "", "expected current head (default: read it first)")
		first  = fs.Bool("first", false, "add the first version (no current head)")
		zkp    = fs.String("zkp", "", "zero-knowledge-proof value (JSON)")
		proof  = fs.String("proof", "", "digital proof (JSON)")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: add [-new POINTER | -file FILE] [-last POINTER | -first] DOMAIN:ID")
	}

	key, err := anchoring.ParseKey(fs.Arg(0))
	if err != nil {
		return err
	}

	p := anchoring.Pointer(*newPtr)
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return errors.Wrapf(err, "reading %s", *file)
		}
		p, err = anchoring.PointerFor(data)
		if err != nil {
			return errors.Wrapf(err, "computing pointer for %s", *file)
		}
	}
	if p == "" {
		return errors.New("one of -new or -file is required")
	}

	var proofs []dossier.Proof
	if *zkp != "" {
		if !json.Valid([]byte(*zkp)) {
			return errors.New("-zkp is not valid JSON")
		}
		proofs = append(proofs, dossier.ZKP(json.RawMessage(*zkp)))
	}
	if *proof != "" {
		if !json.Valid([]byte(*proof)) {
			return errors.New("-proof is not valid JSON")
		}
		proofs = append(proofs, dossier.DigitalProof(json.RawMessage(*proof)))
	}

	var body []byte
	if *last != "" || *first {
		rec := anchoring.NewRecord(anchoring.Pointer(*last), p)
		for _, attach := range proofs {
			attach(&rec)
		}
		body, err = c.client.AddVersion(ctx, key, rec)
	} else {
		body, err = dossier.New(c.client, key).Commit(ctx, p, proofs...)
	}
	if err != nil {
		return errors.Wrapf(err, "adding %s to %s", p, key)
	}

	fmt.Printf("%s\n", body)
	return nil
}
