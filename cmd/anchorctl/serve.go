package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring/service"
	"github.com/skutner/anchoring/store/logging"
)

func (c maincmd) serve(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		addr    = fs.String("addr", ":8080", "listen address")
		conf    = fs.String("store", "", "path to store config file (JSON)")
		verbose = fs.Bool("v", false, "log every store operation")
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
	if *verbose {
		s = logging.New(s)
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", *addr)
	}
	defer lis.Close()

	srv := &http.Server{Handler: service.NewServer(s)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Listening on %s", lis.Addr())

	err = srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
