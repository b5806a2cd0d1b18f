// Package pg implements an anchoring store in a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrs "errors"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = &Store{}

// Store is a Postgresql-based anchoring store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `versions` table if it does not exist.
// (If it does exist, it must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS versions (
  anchor_id TEXT NOT NULL,
  seq BIGINT NOT NULL,
  pointer TEXT NOT NULL,
  zkp BYTEA,
  proof BYTEA,
  PRIMARY KEY (anchor_id, seq)
);
`

// New produces a new Store using `db` for storage.
// It expects to create the table `versions`,
// or for that table already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Versions implements anchoring.Store.Versions.
func (s *Store) Versions(ctx context.Context, id string) (anchoring.Chain, error) {
	const q = `SELECT pointer FROM versions WHERE anchor_id = $1 ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, errors.Wrapf(err, "querying versions of %s", id)
	}
	defer rows.Close()

	var result anchoring.Chain
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(err, "scanning query result")
		}
		result = append(result, anchoring.Pointer(p))
	}
	return result, errors.Wrap(rows.Err(), "iterating over result rows")
}

// Records returns the chain of records for id, oldest first.
func (s *Store) Records(ctx context.Context, id string) ([]anchoring.Record, error) {
	const q = `SELECT pointer, zkp, proof FROM versions WHERE anchor_id = $1 ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, errors.Wrapf(err, "querying records of %s", id)
	}
	defer rows.Close()

	var (
		result []anchoring.Record
		last   anchoring.Pointer
	)
	for rows.Next() {
		var (
			p          string
			zkp, proof []byte
		)
		if err := rows.Scan(&p, &zkp, &proof); err != nil {
			return nil, errors.Wrap(err, "scanning query result")
		}
		rec := anchoring.NewRecord(last, anchoring.Pointer(p))
		rec.ZKPValue, rec.DigitalProof = raw(zkp), raw(proof)
		result = append(result, rec)
		last = rec.New
	}
	return result, errors.Wrap(rows.Err(), "iterating over result rows")
}

func raw(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// Append implements anchoring.Store.Append.
// Two concurrent appends atop the same head compute the same seq,
// and the primary key rejects the second one.
func (s *Store) Append(ctx context.Context, id string, rec anchoring.Record) error {
	const q = `INSERT INTO versions (anchor_id, seq, pointer, zkp, proof)
		SELECT $1::text, (SELECT COALESCE(MAX(seq), 0) + 1 FROM versions WHERE anchor_id = $1::text), $2::text, $3::bytea, $4::bytea
		WHERE COALESCE((SELECT pointer FROM versions WHERE anchor_id = $1::text ORDER BY seq DESC LIMIT 1), '') = $5::text`

	var last string
	if rec.Last != nil {
		if *rec.Last == "" {
			return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
		}
		last = string(*rec.Last)
	}

	res, err := s.db.ExecContext(ctx, q, id, string(rec.New), []byte(rec.ZKPValue), []byte(rec.DigitalProof), last)
	var perr *pq.Error
	if stderrs.As(err, &perr) && perr.Code == "23505" { // unique_violation
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}
	if err != nil {
		return errors.Wrapf(err, "inserting version of %s", id)
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}
	return nil
}

// ListAnchors implements anchoring.Store.ListAnchors.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string) error) error {
	const q = `SELECT DISTINCT anchor_id FROM versions WHERE anchor_id > $1 ORDER BY anchor_id`

	rows, err := s.db.QueryContext(ctx, q, start)
	if err != nil {
		return errors.Wrap(err, "querying starting position")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.Wrap(err, "scanning query result")
		}
		if err := f(id); err != nil {
			return err
		}
	}
	return errors.Wrap(rows.Err(), "iterating over result rows")
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (anchoring.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
