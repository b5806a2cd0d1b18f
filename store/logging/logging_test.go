package logging

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/skutner/anchoring/store/mem"
	"github.com/skutner/anchoring/testutil"
)

func TestChains(t *testing.T) {
	buf := new(bytes.Buffer)
	log.SetOutput(buf)
	defer log.SetOutput(os.Stderr)

	testutil.Chains(context.Background(), t, New(mem.New()))

	out := buf.String()
	for _, want := range []string{
		"Append(anchor1, <none> -> h1)",
		"ERROR in Append(anchor1, h1 -> h3)",
		"Versions(anchor1): 3 version(s)",
		"ListAnchors: anchor2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output lacks %q", want)
		}
	}
}
