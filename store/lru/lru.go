// Package lru implements an object store that acts as a least-recently-used cache for a nested object store.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
)

var _ vsdb.Store = &Store{}

// Store implements a memory-based least-recently-used cache for an object store.
// Writes pass through to the underlying store.
// Since objects are immutable, cached entries never go stale.
type Store struct {
	c *lru.Cache // Ref->Blob
	s vsdb.Store
}

// New produces a new Store backed by `s` and caching up to `size` blobs.
func New(s vsdb.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref vsdb.Ref) (vsdb.Blob, error) {
	if got, ok := s.c.Get(ref); ok {
		return clone(got.(vsdb.Blob)), nil
	}
	blob, err := s.s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.c.Add(ref, clone(blob))
	return blob, nil
}

// Has tells whether the store contains `ref`.
func (s *Store) Has(ctx context.Context, ref vsdb.Ref) (bool, error) {
	if s.c.Contains(ref) {
		return true, nil
	}
	return s.s.Has(ctx, ref)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vsdb.Blob) (vsdb.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		return ref, added, err
	}
	s.c.Add(ref, clone(b))
	return ref, added, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start vsdb.Ref, f func(vsdb.Ref) error) error {
	return s.s.ListRefs(ctx, start, f)
}

func clone(b vsdb.Blob) vsdb.Blob {
	out := make(vsdb.Blob, len(b))
	copy(out, b)
	return out
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
		size, ok := store.IntParam(conf, "size")
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, err := store.Nested(ctx, conf, ns)
		if err != nil {
			return nil, err
		}
		return New(nested, size)
	})
}
