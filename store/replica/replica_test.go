package replica

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
	"github.com/vsdb/vsdb/store/mem"
	"github.com/vsdb/vsdb/testutil"
)

func newTestStore(ctx context.Context, t *testing.T, syncStores, asyncStores []vsdb.Store) *Store {
	t.Helper()
	s, err := New(ctx, syncStores, asyncStores, 1)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestReplicaSets(t *testing.T) {
	ctx := context.Background()

	var (
		m1 = mem.New()
		m2 = mem.New()
		s  = newTestStore(ctx, t, []vsdb.Store{m1, m2}, nil)
	)

	ref1, _, err := m1.Put(ctx, vsdb.Blob("foo"))
	if err != nil {
		t.Fatal(err)
	}
	ref2, _, err := m2.Put(ctx, vsdb.Blob("bar"))
	if err != nil {
		t.Fatal(err)
	}
	ref3, added, err := s.Put(ctx, vsdb.Blob("baz"))
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("new blob not reported as added")
	}

	checkReplica(ctx, t, "m1", m1, ref1, ref3)
	checkReplica(ctx, t, "m2", m2, ref2, ref3)
	checkReplica(ctx, t, "replica", s, ref1, ref2, ref3)

	// Reads fall through to the store that has the object.
	b, err := s.Get(ctx, ref2)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "bar" {
		t.Errorf("got %q, want bar", b)
	}

	if _, err := s.Get(ctx, vsdb.Blob("absent").Ref()); !errors.Is(err, vsdb.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func checkReplica(ctx context.Context, t *testing.T, name string, s vsdb.Getter, want ...vsdb.Ref) {
	t.Run(name, func(t *testing.T) {
		var got []vsdb.Ref
		err := s.ListRefs(ctx, vsdb.Zero, func(r vsdb.Ref) error {
			got = append(got, r)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestAsync(t *testing.T) {
	ctx := context.Background()

	var (
		primary = mem.New()
		mirror  = mem.New()
		s       = newTestStore(ctx, t, []vsdb.Store{primary}, []vsdb.Store{mirror})
	)

	var refs []vsdb.Ref
	for _, b := range []string{"one", "two", "three"} {
		ref, _, err := s.Put(ctx, vsdb.Blob(b))
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, ref)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	checkReplica(ctx, t, "mirror", mirror, refs...)

	if _, _, err := s.Put(ctx, vsdb.Blob("late")); err == nil {
		t.Error("Put after Close succeeded")
	}
}

func TestPutDuringClose(t *testing.T) {
	ctx := context.Background()

	var (
		mirror = mem.New()
		s      = newTestStore(ctx, t, []vsdb.Store{mem.New()}, []vsdb.Store{mirror})
		wg     sync.WaitGroup
	)

	var (
		mu     sync.Mutex
		stored []vsdb.Ref
	)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ref, _, err := s.Put(ctx, vsdb.Blob(fmt.Sprintf("%d-%d", i, j)))
				if errors.Is(err, errClosed) {
					return
				}
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				stored = append(stored, ref)
				mu.Unlock()
			}
		}()
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	// Every Put that succeeded reached the asynchronous store.
	for _, ref := range stored {
		ok, err := mirror.Has(ctx, ref)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("%s missing from asynchronous store", ref)
		}
	}
}

func TestAllRefs(t *testing.T) {
	ctx := context.Background()

	testutil.AllRefs(ctx, t, func() vsdb.Store {
		return newTestStore(ctx, t, []vsdb.Store{mem.New(), mem.New()}, nil)
	})
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()

	testutil.ReadWrite(ctx, t, func() vsdb.Store {
		return newTestStore(ctx, t, []vsdb.Store{mem.New(), mem.New()}, nil)
	})
}

func TestRegistry(t *testing.T) {
	conf := map[string]interface{}{
		"type":  "replica",
		"sync":  []interface{}{map[string]interface{}{"type": "mem"}},
		"async": []interface{}{map[string]interface{}{"type": "mem"}},
		"queue": float64(4),
	}
	s, err := store.FromConfig(context.Background(), conf, store.Commits)
	if err != nil {
		t.Fatal(err)
	}
	rs, ok := s.(*Store)
	if !ok {
		t.Fatalf("got %T, want *Store", s)
	}
	if len(rs.sync) != 1 || len(rs.async) != 1 {
		t.Errorf("got %d sync and %d async stores, want 1 and 1", len(rs.sync), len(rs.async))
	}
	if err := rs.Close(); err != nil {
		t.Error(err)
	}

	if _, err := store.FromConfig(context.Background(), map[string]interface{}{"type": "replica"}, store.Blobs); err == nil {
		t.Error("expected an error for a replica with no sync stores")
	}
}
