package lru

import (
	"context"
	"errors"
	"testing"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
	"github.com/vsdb/vsdb/store/mem"
	"github.com/vsdb/vsdb/testutil"
)

func newTestStore(t *testing.T) vsdb.Store {
	s, err := New(mem.New(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, func() vsdb.Store { return newTestStore(t) })
}

func TestAllRefs(t *testing.T) {
	testutil.AllRefs(context.Background(), t, func() vsdb.Store { return newTestStore(t) })
}

func TestCacheHit(t *testing.T) {
	var (
		ctx    = context.Background()
		nested = mem.New()
	)
	s, err := New(nested, 10)
	if err != nil {
		t.Fatal(err)
	}

	ref, _, err := s.Put(ctx, vsdb.Blob("hello"))
	if err != nil {
		t.Fatal(err)
	}

	// Once cached, a blob survives removal from the nested store.
	nested.Delete(ref)
	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want hello", got)
	}

	_, err = s.Get(ctx, vsdb.Blob("missing").Ref())
	if !errors.Is(err, vsdb.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestRegistry(t *testing.T) {
	conf := map[string]interface{}{
		"type":   "lru",
		"size":   float64(5), // as decoded from JSON
		"nested": map[string]interface{}{"type": "mem"},
	}
	s, err := store.FromConfig(context.Background(), conf, store.Blobs)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Store); !ok {
		t.Errorf("got %T, want *Store", s)
	}
}
