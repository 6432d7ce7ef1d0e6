// Package replica implements an object store that mirrors its contents across other stores.
//
// A typical use keeps a repository's objects in a local file store
// while copying them in the background to a remote one:
//
//	{"type": "replica",
//	 "sync": [{"type": "file", "root": "objects"}],
//	 "async": [{"type": "gcs", "bucket": "backups"}]}
package replica

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
)

var _ vsdb.Store = (*Store)(nil)

// DefaultQueueLen is the length of each asynchronous store's write queue
// when the configuration does not give one.
const DefaultQueueLen = 16

// Store is an object store that delegates to two sets of nested stores.
//
// Writes to the synchronous stores must all succeed before Put returns.
// Reads are served by the first synchronous store that has the object.
//
// Writes to the asynchronous stores are queued, and Put does not wait for them
// unless a queue is full.
// If any asynchronous write fails,
// the Store enters an error state and every further operation fails.
type Store struct {
	sync  []vsdb.Store
	async []chan<- vsdb.Blob

	ctx    context.Context // canceled when an async write fails
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex // protects err
	err error

	closeMu sync.RWMutex // held for reading while enqueueing async writes
	closed  bool
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// Each asynchronous store gets a goroutine and a write queue of length n.
// Canceling ctx stops those goroutines and puts the Store in an error state.
// Call Close to wait for queued writes to finish.
func New(ctx context.Context, syncStores, asyncStores []vsdb.Store, n int) (*Store, error) {
	if len(syncStores) == 0 {
		return nil, errors.New("no synchronous stores")
	}
	if n < 1 {
		n = 1
	}

	result := &Store{sync: syncStores}
	result.ctx, result.cancel = context.WithCancel(ctx)

	for _, a := range asyncStores {
		ch := make(chan vsdb.Blob, n)
		result.async = append(result.async, ch)

		a := a
		result.wg.Add(1)
		go func() {
			defer result.wg.Done()
			result.runAsync(result.ctx, a, ch)
		}()
	}

	return result, nil
}

// Runs until ch is closed or ctx is canceled, or until a write fails.
func (s *Store) runAsync(ctx context.Context, dst vsdb.Store, ch <-chan vsdb.Blob) {
	for {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			return

		case blob, ok := <-ch:
			if !ok {
				return
			}
			if _, _, err := dst.Put(ctx, blob); err != nil {
				s.fail(errors.Wrap(err, "asynchronous write"))
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

var errClosed = errors.New("replica store closed")

func (s *Store) checkErr() error {
	s.closeMu.RLock()
	closed := s.closed
	s.closeMu.RUnlock()
	if closed {
		return errClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close waits for queued asynchronous writes to finish
// and reports the first asynchronous error, if any.
// Operations on the Store fail once Close has begun.
func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	for _, ch := range s.async {
		close(ch)
	}
	s.wg.Wait()
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(s.err, context.Canceled) {
		return nil
	}
	return s.err
}

// Put stores blob in every synchronous store
// and queues it for every asynchronous one.
// The added result is true if any synchronous store did not already have the blob.
func (s *Store) Put(ctx context.Context, blob vsdb.Blob) (vsdb.Ref, bool, error) {
	if err := s.checkErr(); err != nil {
		return vsdb.Zero, false, err
	}

	var (
		mu    sync.Mutex
		added bool
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range s.sync {
		st := st
		g.Go(func() error {
			_, a, err := st.Put(gctx, blob)
			if err != nil {
				return err
			}
			mu.Lock()
			added = added || a
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return vsdb.Zero, false, err
	}

	if err := s.enqueue(ctx, blob); err != nil {
		return vsdb.Zero, false, err
	}
	return blob.Ref(), added, nil
}

func (s *Store) enqueue(ctx context.Context, blob vsdb.Blob) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return errClosed
	}
	for _, ch := range s.async {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			if err := s.checkAsyncErr(); err != nil {
				return err
			}
			return s.ctx.Err()
		case ch <- blob:
		}
	}
	return nil
}

func (s *Store) checkAsyncErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Get gets the object at ref from the first synchronous store that has it.
func (s *Store) Get(ctx context.Context, ref vsdb.Ref) (vsdb.Blob, error) {
	if err := s.checkErr(); err != nil {
		return nil, err
	}
	for _, st := range s.sync {
		b, err := st.Get(ctx, ref)
		if errors.Is(err, vsdb.ErrNotFound) {
			continue
		}
		return b, err
	}
	return nil, vsdb.ErrNotFound
}

// Has tells whether any synchronous store has the object at ref.
func (s *Store) Has(ctx context.Context, ref vsdb.Ref) (bool, error) {
	if err := s.checkErr(); err != nil {
		return false, err
	}
	for _, st := range s.sync {
		ok, err := st.Has(ctx, ref)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// ListRefs produces the union of the refs in the synchronous stores, in order.
func (s *Store) ListRefs(ctx context.Context, start vsdb.Ref, f func(vsdb.Ref) error) error {
	if err := s.checkErr(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	chans := make([]chan vsdb.Ref, len(s.sync))
	for i, st := range s.sync {
		ch := make(chan vsdb.Ref, 1)
		chans[i] = ch

		st := st
		g.Go(func() error {
			defer close(ch)
			return st.ListRefs(gctx, start, func(ref vsdb.Ref) error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case ch <- ref:
					return nil
				}
			})
		})
	}

	type head struct {
		ref vsdb.Ref
		ok  bool
	}
	heads := make([]head, len(chans))
	for i, ch := range chans {
		heads[i].ref, heads[i].ok = <-ch
	}

	for {
		var (
			best  vsdb.Ref
			found bool
		)
		for _, h := range heads {
			if h.ok && (!found || h.ref.Less(best)) {
				best, found = h.ref, true
			}
		}
		if !found {
			break
		}
		if err := f(best); err != nil {
			cancel()
			g.Wait()
			return err
		}
		for i := range heads {
			if heads[i].ok && heads[i].ref == best {
				heads[i].ref, heads[i].ok = <-chans[i]
			}
		}
	}

	return g.Wait()
}

func nestedList(ctx context.Context, conf map[string]interface{}, key, ns string) ([]vsdb.Store, error) {
	items, ok := conf[key].([]interface{})
	if !ok {
		return nil, nil
	}
	var result []vsdb.Store
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("%s item %d is not a store config", key, i)
		}
		s, err := store.FromConfig(ctx, m, ns)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s store %d", key, i)
		}
		result = append(result, s)
	}
	return result, nil
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
		syncStores, err := nestedList(ctx, conf, "sync", ns)
		if err != nil {
			return nil, err
		}
		asyncStores, err := nestedList(ctx, conf, "async", ns)
		if err != nil {
			return nil, err
		}
		n, ok := store.IntParam(conf, "queue")
		if !ok {
			n = DefaultQueueLen
		}
		// The store outlives the context of its creation.
		return New(context.WithoutCancel(ctx), syncStores, asyncStores, n)
	})
}
