// Package testutil contains conformance tests shared by the object-store implementations.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"pgregory.net/rapid"

	"github.com/vsdb/vsdb"
)

// ReadWrite checks round-trip and idempotence of Put and Get
// on fresh stores produced by storeFactory.
func ReadWrite(ctx context.Context, t *testing.T, storeFactory func() vsdb.Store) {
	rapid.Check(t, func(rt *rapid.T) {
		var (
			s     = storeFactory()
			blob  = vsdb.Blob(rapid.SliceOf(rapid.Byte()).Draw(rt, "blob"))
			other = vsdb.Blob(rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(rt, "other"))
		)
		if bytes.Equal(blob, other) {
			other = append(other, 0)
		}

		ref, added, err := s.Put(ctx, blob)
		if err != nil {
			rt.Fatal(err)
		}
		if ref != blob.Ref() {
			rt.Fatalf("Put returned ref %s, want %s", ref, blob.Ref())
		}
		if !added {
			rt.Fatal("first Put of a blob did not add it")
		}

		got, err := s.Get(ctx, ref)
		if err != nil {
			rt.Fatal(err)
		}
		if !bytes.Equal(got, blob) {
			rt.Fatalf("got %x, want %x", got, blob)
		}

		before := count(ctx, rt, s)
		ref2, added, err := s.Put(ctx, blob)
		if err != nil {
			rt.Fatal(err)
		}
		if ref2 != ref {
			rt.Fatalf("second Put returned ref %s, want %s", ref2, ref)
		}
		if added {
			rt.Fatal("second Put of a blob added it again")
		}
		if after := count(ctx, rt, s); after != before {
			rt.Fatalf("object count went from %d to %d on a repeated Put", before, after)
		}

		ok, err := s.Has(ctx, ref)
		if err != nil {
			rt.Fatal(err)
		}
		if !ok {
			rt.Fatal("Has is false for a stored blob")
		}

		ok, err = s.Has(ctx, other.Ref())
		if err != nil {
			rt.Fatal(err)
		}
		if ok {
			rt.Fatal("Has is true for a blob never stored")
		}

		_, err = s.Get(ctx, other.Ref())
		if !errors.Is(err, vsdb.ErrNotFound) {
			rt.Fatalf("Get of a missing ref returned %v, want ErrNotFound", err)
		}
	})
}

// AllRefs writes a random set of random blobs to an empty store
// and makes sure that the right set of refs comes back in a call to ListRefs.
func AllRefs(ctx context.Context, t *testing.T, storeFactory func() vsdb.Store) {
	rapid.Check(t, func(rt *rapid.T) {
		var (
			s     = storeFactory()
			blobs = rapid.SliceOfN(rapid.SliceOf(rapid.Byte()), 0, 20).Draw(rt, "blobs")
			want  []vsdb.Ref
		)
		for _, b := range blobs {
			ref, added, err := s.Put(ctx, b)
			if err != nil {
				rt.Fatal(err)
			}
			if added {
				want = append(want, ref)
			}
		}
		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

		got := list(ctx, rt, s, vsdb.Zero)
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			rt.Fatalf("mismatch (-want +got):\n%s", diff)
		}

		if len(want) == 0 {
			return
		}
		k := rapid.IntRange(0, len(want)-1).Draw(rt, "start")
		got = list(ctx, rt, s, want[k])
		if diff := cmp.Diff(want[k+1:], got, cmpopts.EquateEmpty()); diff != "" {
			rt.Fatalf("ListRefs after %s mismatch (-want +got):\n%s", want[k], diff)
		}
	})
}

func list(ctx context.Context, rt *rapid.T, s vsdb.Getter, start vsdb.Ref) []vsdb.Ref {
	var refs []vsdb.Ref
	err := s.ListRefs(ctx, start, func(r vsdb.Ref) error {
		refs = append(refs, r)
		return nil
	})
	if err != nil {
		rt.Fatal(err)
	}
	return refs
}

func count(ctx context.Context, rt *rapid.T, s vsdb.Getter) int {
	return len(list(ctx, rt, s, vsdb.Zero))
}
