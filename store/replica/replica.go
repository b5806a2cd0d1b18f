// Package replica implements an anchoring store
// that mirrors the appends accepted by a primary store
// onto other stores in the background.
package replica

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/store"
)

var _ anchoring.Store = (*Store)(nil)

// Store is an anchoring store that delegates to a primary store
// and copies every record the primary accepts onto a set of mirrors.
// Reads go to the primary only.
// Mirrors receive records asynchronously, in the order the primary accepted them.
// However, if any mirror fails to append a record
// (including by conflict, which means it has diverged),
// the whole Store is put into an error state and further operations will fail.
type Store struct {
	primary anchoring.Store
	mirrors []chan<- entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	wmu    sync.Mutex // serializes Append and Close
	closed bool

	mu  sync.Mutex // protects err
	err error      // the error from a mirror goroutine, if any
}

type entry struct {
	id  string
	rec anchoring.Record
}

// New produces a new Store.
// Goroutines are launched for the mirrors, if any,
// and canceling the given context object causes those to exit,
// placing the Store in an error state.
//
// Normally, writes to mirrors do not block calls to Append,
// but the queue for each mirror has a fixed length given by n,
// which must be 1 or greater.
// If any mirror falls too far behind,
// Append will block until the record can be queued.
func New(ctx context.Context, primary anchoring.Store, mirrors []anchoring.Store, n int) *Store {
	result := &Store{primary: primary}
	result.ctx, result.cancel = context.WithCancel(ctx)

	for _, m := range mirrors {
		ch := make(chan entry, n)
		result.mirrors = append(result.mirrors, ch)
		result.wg.Add(1)
		go result.runMirror(m, ch)
	}

	return result
}

// Runs as a goroutine until its queue is closed, s.ctx is canceled, or an error occurs.
func (s *Store) runMirror(m anchoring.Store, entries <-chan entry) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			s.fail(s.ctx.Err())
			return

		case e, ok := <-entries:
			if !ok {
				return
			}
			if err := m.Append(s.ctx, e.id, e.rec); err != nil {
				s.fail(errors.Wrapf(err, "mirroring %s to %s", e.rec.New, e.id))
				return
			}
		}
	}
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Versions implements anchoring.Store.Versions.
func (s *Store) Versions(ctx context.Context, id string) (anchoring.Chain, error) {
	if err := s.checkErr(); err != nil {
		return nil, errors.Wrap(err, "in mirror goroutine")
	}
	return s.primary.Versions(ctx, id)
}

// Append implements anchoring.Store.Append.
// The record is appended to the primary store.
// If it is accepted there,
// a request to append it is queued for each mirror.
func (s *Store) Append(ctx context.Context, id string, rec anchoring.Record) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in mirror goroutine")
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.closed {
		return errors.New("replica store closed")
	}

	if err := s.primary.Append(ctx, id, rec); err != nil {
		return err
	}

	for _, ch := range s.mirrors {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.ctx.Done():
			err := s.checkErr()
			if err == nil {
				err = s.ctx.Err()
			}
			return errors.Wrap(err, "in mirror goroutine")

		case ch <- entry{id: id, rec: rec}:
		}
	}
	return nil
}

// ListAnchors implements anchoring.Store.ListAnchors.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string) error) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in mirror goroutine")
	}
	return s.primary.ListAnchors(ctx, start, f)
}

// Close waits for the mirrors to drain their queues
// and reports the first mirror error, if any.
// Append fails after Close.
func (s *Store) Close() error {
	s.wmu.Lock()
	if !s.closed {
		s.closed = true
		for _, ch := range s.mirrors {
			close(ch)
		}
	}
	s.wmu.Unlock()

	s.wg.Wait()
	return s.checkErr()
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (anchoring.Store, error) {
		primary, err := store.CreateNested(ctx, conf, "primary")
		if err != nil {
			return nil, errors.Wrap(err, "creating primary store")
		}

		var mirrors []anchoring.Store
		if items, ok := conf["mirrors"].([]interface{}); ok {
			for _, item := range items {
				nested, ok := item.(map[string]interface{})
				if !ok {
					return nil, errors.New(`"mirrors" item is not an object`)
				}
				nestedType, ok := nested["type"].(string)
				if !ok {
					return nil, errors.New(`"mirrors" item missing "type"`)
				}
				m, err := store.Create(ctx, nestedType, nested)
				if err != nil {
					return nil, errors.Wrap(err, "creating mirror store")
				}
				mirrors = append(mirrors, m)
			}
		}

		queueLen := 10
		if _, ok := conf["queuelen"]; ok {
			queueLen, err = store.IntParam(conf, "queuelen")
			if err != nil {
				return nil, err
			}
			if queueLen < 1 {
				return nil, errors.Errorf("queue length %d is not positive", queueLen)
			}
		}

		return New(ctx, primary, mirrors, queueLen), nil
	})
}
