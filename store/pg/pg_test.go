package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/skutner/anchoring/testutil"
)

func TestChains(t *testing.T) {
	withStore(t, func(ctx context.Context, store *Store) {
		testutil.Chains(ctx, t, store)
	})
}

func TestRace(t *testing.T) {
	withStore(t, func(ctx context.Context, store *Store) {
		testutil.Race(ctx, t, store, 8)
	})
}

const connVar = "ANCHORING_PG_TESTING_CONN"

// The database named by the connection string must start out without a versions table.
func withStore(t *testing.T, f func(context.Context, *Store)) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	store, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	defer db.ExecContext(ctx, `DROP TABLE versions`)

	f(ctx, store)
}
