// Package mem implements an in-memory object store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
)

var _ vsdb.Store = &Store{}

// Store is a memory-based implementation of an object store.
type Store struct {
	mu    sync.Mutex
	blobs map[vsdb.Ref]vsdb.Blob
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blobs: make(map[vsdb.Ref]vsdb.Blob),
	}
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(_ context.Context, ref vsdb.Ref) (vsdb.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[ref]
	if !ok {
		return nil, vsdb.ErrNotFound
	}
	out := make(vsdb.Blob, len(b))
	copy(out, b)
	return out, nil
}

// Has tells whether the store contains `ref`.
func (s *Store) Has(_ context.Context, ref vsdb.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.blobs[ref]
	return ok, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b vsdb.Blob) (vsdb.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := b.Ref()
	if _, ok := s.blobs[r]; ok {
		return r, false, nil
	}

	stored := make(vsdb.Blob, len(b))
	copy(stored, b)
	s.blobs[r] = stored
	return r, true, nil
}

// Delete removes a blob from the store.
// It exists so tests can simulate an object vanishing out-of-band;
// it is not part of the vsdb.Store interface.
func (s *Store) Delete(ref vsdb.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, ref)
}

// Len tells how many objects are in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.blobs)
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start vsdb.Ref, f func(vsdb.Ref) error) error {
	s.mu.Lock()
	refs := make([]vsdb.Ref, 0, len(s.blobs))
	for ref := range s.blobs {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	index := sort.Search(len(refs), func(n int) bool {
		return start.Less(refs[n])
	})

	for i := index; i < len(refs); i++ {
		err := f(refs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}, string) (vsdb.Store, error) {
		return New(), nil
	})
}
