// Package bt implements an anchoring store on Google Cloud Bigtable.
package bt

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/bigtable"
	"google.golang.org/api/option"
	"google.golang.org/grpc"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = &Store{}

// Store is a Google Cloud Bigtable-backed implementation of anchoring.Store.
// Each version of each anchor is a row,
// keyed by the hex-encoded anchor identifier and the version's position in its chain.
type Store struct {
	t *bigtable.Table
}

const (
	recordcol = "record"
	recordfam = "anchor"
)

// New produces a new Store.
func New(t *bigtable.Table) *Store {
	return &Store{t: t}
}

// CreateTable creates a table suitable for a Store.
func CreateTable(ctx context.Context, admin *bigtable.AdminClient, table string) error {
	err := admin.CreateTable(ctx, table)
	if err != nil {
		return errors.Wrapf(err, "creating table %s", table)
	}
	err = admin.CreateColumnFamily(ctx, table, recordfam)
	return errors.Wrapf(err, "creating column family %s", recordfam)
}

// Records returns the chain of records for id, oldest first.
func (s *Store) Records(ctx context.Context, id string) ([]anchoring.Record, error) {
	var (
		recs     []anchoring.Record
		innerErr error
	)
	err := s.t.ReadRows(ctx, anchorRange(id), func(row bigtable.Row) bool {
		items := row[recordfam]
		if len(items) == 0 {
			innerErr = errors.Errorf("empty row %s", row.Key())
			return false
		}
		var rec anchoring.Record
		if err := json.Unmarshal(items[0].Value, &rec); err != nil {
			innerErr = errors.Wrapf(err, "decoding row %s", row.Key())
			return false
		}
		recs = append(recs, rec)
		return true
	}, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrapf(err, "reading rows for %s", id)
	}
	return recs, innerErr
}

// Versions implements anchoring.Store.Versions.
func (s *Store) Versions(ctx context.Context, id string) (anchoring.Chain, error) {
	recs, err := s.Records(ctx, id)
	if err != nil {
		return nil, err
	}
	var chain anchoring.Chain
	for _, rec := range recs {
		chain = append(chain, rec.New)
	}
	return chain, nil
}

// Append implements anchoring.Store.Append.
// The new row is written only if no row yet exists at its position,
// so of two writers racing for the same head at most one succeeds.
func (s *Store) Append(ctx context.Context, id string, rec anchoring.Record) error {
	chain, err := s.Versions(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Follows(chain.Head()) {
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}

	mut := bigtable.NewMutation()
	mut.Set(recordfam, recordcol, bigtable.Now(), val)

	cmut := bigtable.NewCondMutation(bigtable.LatestNFilter(1), nil, mut)

	var alreadyPresent bool
	key := anchorKey(id, len(chain)+1)
	err = s.t.Apply(ctx, key, cmut, bigtable.GetCondMutationResult(&alreadyPresent))
	if err != nil {
		return errors.Wrapf(err, "writing row %s", key)
	}
	if alreadyPresent {
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}
	return nil
}

// ListAnchors implements anchoring.Store.ListAnchors.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string) error) error {
	var (
		lastID   string
		innerErr error
	)
	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		id, _, err := idSeqFromKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "parsing key %s", key)
			return false
		}
		if id == lastID {
			return true
		}
		lastID = id
		if err := f(id); err != nil {
			innerErr = err
			return false
		}
		return true
	}

	// Row keys of identifiers after start sort at or after this one.
	startKey := "a:" + hex.EncodeToString([]byte(start)) + "0"
	err := s.t.ReadRows(ctx, bigtable.NewRange(startKey, "a;"), rowFn, bigtable.RowFilter(bigtable.StripValueFilter()))
	if err != nil {
		return err
	}
	return innerErr
}

// The separator sorts before every hex digit,
// so the rows of an identifier precede those of its extensions.
func anchorKey(id string, seq int) string {
	return fmt.Sprintf("a:%x/%020d", id, seq)
}

func anchorRange(id string) bigtable.RowSet {
	return bigtable.PrefixRange(fmt.Sprintf("a:%x/", id))
}

func idSeqFromKey(key string) (string, int, error) {
	rest := strings.TrimPrefix(key, "a:")
	hexID, seqStr, ok := strings.Cut(rest, "/")
	if !ok || rest == key {
		return "", 0, errors.New("malformed key")
	}
	id, err := hex.DecodeString(hexID)
	if err != nil {
		return "", 0, errors.Wrap(err, "decoding identifier")
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil {
		return "", 0, errors.Wrap(err, "parsing sequence number")
	}
	return string(id), seq, nil
}

func init() {
	store.Register("bt", func(ctx context.Context, conf map[string]interface{}) (anchoring.Store, error) {
		project, ok := conf["project"].(string)
		if !ok {
			return nil, errors.New(`missing "project" parameter`)
		}
		instance, ok := conf["instance"].(string)
		if !ok {
			return nil, errors.New(`missing "instance" parameter`)
		}
		table, ok := conf["table"].(string)
		if !ok {
			return nil, errors.New(`missing "table" parameter`)
		}

		var options []option.ClientOption

		if addr, ok := conf["emulator"].(string); ok {
			conn, err := grpc.Dial(addr, grpc.WithInsecure())
			if err != nil {
				return nil, errors.Wrapf(err, "connecting to emulator at %s", addr)
			}
			options = append(options, option.WithGRPCConn(conn))
		} else {
			creds, ok := conf["creds"].(string)
			if !ok {
				return nil, errors.New(`missing "creds" parameter`)
			}
			options = append(options, option.WithCredentialsFile(creds))
		}

		c, err := bigtable.NewClient(ctx, project, instance, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating bigtable client")
		}
		return New(c.Open(table)), nil
	})
}
