// Package file implements an object store as a directory of files,
// one per object, named by the hex form of its ref.
package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio"
	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
)

var _ vsdb.Store = &Store{}

// Store is a file-based implementation of an object store.
type Store struct {
	root string
}

// New produces a new Store storing objects directly beneath `root`.
// The directory is created on the first Put.
func New(root string) *Store {
	return &Store{root: root}
}

// Root is the directory holding the store's objects.
func (s *Store) Root() string {
	return s.root
}

// Path is the file in which the object with the given ref is (or would be) stored.
func (s *Store) Path(ref vsdb.Ref) string {
	return filepath.Join(s.root, ref.String())
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(_ context.Context, ref vsdb.Ref) (vsdb.Blob, error) {
	path := s.Path(ref)
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, vsdb.ErrNotFound
	}
	if err != nil {
		return nil, vsdb.NewIOError("reading", path, err)
	}
	return blob, nil
}

// Has tells whether the store contains `ref`.
func (s *Store) Has(_ context.Context, ref vsdb.Ref) (bool, error) {
	path := s.Path(ref)
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, vsdb.NewIOError("checking", path, err)
	}
	return true, nil
}

// Put adds a blob to the store if it wasn't already present.
// The object file is written under a temporary name and renamed into place,
// so a crash never leaves a truncated object under a valid ref.
func (s *Store) Put(ctx context.Context, b vsdb.Blob) (vsdb.Ref, bool, error) {
	ref := b.Ref()

	ok, err := s.Has(ctx, ref)
	if err != nil {
		return vsdb.Zero, false, err
	}
	if ok {
		return ref, false, nil
	}

	err = os.MkdirAll(s.root, 0755)
	if err != nil {
		return vsdb.Zero, false, vsdb.NewIOError("creating", s.root, err)
	}

	path := s.Path(ref)
	err = renameio.WriteFile(path, b, 0644)
	if err != nil {
		return vsdb.Zero, false, vsdb.NewIOError("writing", path, err)
	}

	return ref, true, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
// Files whose names are not refs (such as leftover temporary files) are ignored.
func (s *Store) ListRefs(ctx context.Context, start vsdb.Ref, f func(vsdb.Ref) error) error {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return vsdb.NewIOError("reading dir", s.root, err)
	}

	startHex := start.String()
	index := sort.Search(len(entries), func(n int) bool {
		return entries[n].Name() > startHex
	})
	for _, entry := range entries[index:] {
		if !entry.Type().IsRegular() {
			continue
		}
		ref, err := vsdb.RefFromHex(entry.Name())
		if err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err = f(ref)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(filepath.Join(root, ns)), nil
	})
}
