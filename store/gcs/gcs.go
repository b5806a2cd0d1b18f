// Package gcs implements an anchoring store on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of an anchoring store.
// Each anchor identifier has one object holding its records as JSON.
// Appends are conditioned on the object's generation,
// so concurrent writers cannot overwrite each other.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

const prefix = "anchors/"

func anchorObjName(id string) string {
	return prefix + hex.EncodeToString([]byte(id))
}

func idFromObjName(name string) (string, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(name, prefix))
	return string(b), err
}

// The generation is 0 if the object does not exist.
func (s *Store) records(ctx context.Context, id string) ([]anchoring.Record, int64, error) {
	name := anchorObjName(id)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "reading object %s", name)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "reading contents of object %s", name)
	}
	var recs []anchoring.Record
	err = json.Unmarshal(b, &recs)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "decoding object %s", name)
	}
	return recs, r.Attrs.Generation, nil
}

// Versions implements anchoring.Store.Versions.
func (s *Store) Versions(ctx context.Context, id string) (anchoring.Chain, error) {
	recs, _, err := s.records(ctx, id)
	if err != nil {
		return nil, err
	}
	var result anchoring.Chain
	for _, r := range recs {
		result = append(result, r.New)
	}
	return result, nil
}

// Append implements anchoring.Store.Append.
func (s *Store) Append(ctx context.Context, id string, rec anchoring.Record) error {
	recs, gen, err := s.records(ctx, id)
	if err != nil {
		return err
	}

	var (
		head anchoring.Pointer
		ok   = len(recs) > 0
	)
	if ok {
		head = recs[len(recs)-1].New
	}
	if !rec.Follows(head, ok) {
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}

	b, err := json.Marshal(append(recs, rec))
	if err != nil {
		return errors.Wrap(err, "encoding records")
	}

	cond := storage.Conditions{GenerationMatch: gen}
	if gen == 0 {
		cond = storage.Conditions{DoesNotExist: true}
	}

	var (
		name = anchorObjName(id)
		w    = s.bucket.Object(name).If(cond).NewWriter(ctx)
	)
	w.ContentType = "application/json"

	_, err = w.Write(b)
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", name)
	}
	err = w.Close()
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return errors.Wrapf(anchoring.ErrConflict, "appending %s to %s", rec.New, id)
	}
	return errors.Wrapf(err, "writing object %s", name)
}

// ListAnchors implements anchoring.Store.ListAnchors.
// Hex encoding preserves the lexicographic order of identifiers,
// so the bucket listing is already in the right order.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{
		Prefix:      prefix,
		StartOffset: anchorObjName(start),
	})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over anchor objects")
		}
		id, err := idFromObjName(attrs.Name)
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", attrs.Name)
		}
		if id <= start {
			continue
		}
		err = f(id)
		if err != nil {
			return err
		}
	}
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (anchoring.Store, error) {
		var options []option.ClientOption
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		options = append(options, option.WithCredentialsFile(creds))
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
