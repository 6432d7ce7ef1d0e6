package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vsdb/vsdb"
	. "github.com/vsdb/vsdb/store"
	"github.com/vsdb/vsdb/store/mem"
)

func TestSync(t *testing.T) {
	const text = `abc def ghi jkl mno pqr stu`

	var (
		ctx    = context.Background()
		words  = strings.Fields(text)
		stores = make([]vsdb.Store, 0, len(words))
	)
	for i := range words {
		s := mem.New()
		stores = append(stores, s)
		for j, word := range words {
			if i == j {
				continue
			}

			_, _, err := s.Put(ctx, vsdb.Blob(word))
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	copied, err := Sync(ctx, stores)
	if err != nil {
		t.Fatal(err)
	}
	if copied != len(words) {
		t.Errorf("copied %d objects, want %d", copied, len(words))
	}

	refs := allRefs(ctx, t, stores[0])
	if len(refs) != len(words) {
		t.Fatalf("got %d refs, want %d", len(refs), len(words))
	}

	for i := 1; i < len(stores); i++ {
		if diff := cmp.Diff(refs, allRefs(ctx, t, stores[i])); diff != "" {
			t.Errorf("store %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	// A second sync has nothing to do.
	copied, err = Sync(ctx, stores)
	if err != nil {
		t.Fatal(err)
	}
	if copied != 0 {
		t.Errorf("second sync copied %d objects", copied)
	}
}

func TestSyncEmpty(t *testing.T) {
	ctx := context.Background()
	src, dst := mem.New(), mem.New()
	if _, _, err := src.Put(ctx, vsdb.Blob("only")); err != nil {
		t.Fatal(err)
	}

	copied, err := Sync(ctx, []vsdb.Store{src, dst})
	if err != nil {
		t.Fatal(err)
	}
	if copied != 1 {
		t.Errorf("copied %d objects, want 1", copied)
	}
	ok, err := dst.Has(ctx, vsdb.Blob("only").Ref())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("blob missing from destination")
	}
}

func TestIntParam(t *testing.T) {
	conf := map[string]interface{}{"a": 3, "b": float64(4), "c": "five"}
	if n, ok := IntParam(conf, "a"); !ok || n != 3 {
		t.Errorf("a: got %d, %v", n, ok)
	}
	if n, ok := IntParam(conf, "b"); !ok || n != 4 {
		t.Errorf("b: got %d, %v", n, ok)
	}
	if _, ok := IntParam(conf, "c"); ok {
		t.Error("c: expected failure")
	}
}

func allRefs(ctx context.Context, t *testing.T, s vsdb.Store) []vsdb.Ref {
	var refs []vsdb.Ref
	err := s.ListRefs(ctx, vsdb.Zero, func(ref vsdb.Ref) error {
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return refs
}
