// Command anchorctl reads and writes anchored version chains
// and runs anchoring services.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/bobg/subcmd"

	"github.com/skutner/anchoring/bypass"
	"github.com/skutner/anchoring/client"
	"github.com/skutner/anchoring/config"
	"github.com/skutner/anchoring/locator"
	_ "github.com/skutner/anchoring/store/bt"
	_ "github.com/skutner/anchoring/store/file"
	_ "github.com/skutner/anchoring/store/gcs"
	_ "github.com/skutner/anchoring/store/ldb"
	_ "github.com/skutner/anchoring/store/logging"
	_ "github.com/skutner/anchoring/store/lru"
	_ "github.com/skutner/anchoring/store/mem"
	_ "github.com/skutner/anchoring/store/pg"
	_ "github.com/skutner/anchoring/store/replica"
	_ "github.com/skutner/anchoring/store/sqlite3"
)

type maincmd struct {
	settings config.Source
	client   *client.Client
}

func main() {
	var (
		configFile = flag.String("config", "", "path to settings file (JSON or YAML)")
		bdnsFile   = flag.String("bdns", "", "path to BDNS hosts file (overrides settings)")
	)
	flag.Parse()

	var src config.Source = config.Static{}
	if *configFile != "" {
		w, err := config.Watch(*configFile)
		if err != nil {
			log.Fatalf("Loading settings: %s", err)
		}
		defer w.Close()
		src = w
	}
	if *bdnsFile != "" {
		src = bdnsOverride{Source: src, path: *bdnsFile}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c := maincmd{
		settings: src,
		client:   client.New(locator.FromSettings(src), src, bypass.NewSwitch(src)),
	}
	err := subcmd.Run(ctx, c, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"add":      c.add,
		"list":     c.list,
		"serve":    c.serve,
		"sync":     c.sync,
		"versions": c.versions,
	}
}

type bdnsOverride struct {
	config.Source
	path string
}

func (o bdnsOverride) Settings() config.Settings {
	s := o.Source.Settings()
	s.BDNS = o.path
	return s
}
