package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vsdb/vsdb"
)

// Sync synchronizes two or more stores.
// It runs ListRefs on all input stores.
// When a ref is found to be in some but not all stores,
// its blob is added to the stores where it's missing.
// The number of objects copied is returned.
func Sync(ctx context.Context, stores []vsdb.Store) (int, error) {
	if len(stores) < 2 {
		return 0, nil
	}

	type tuple struct {
		s   vsdb.Store
		ch  <-chan vsdb.Ref
		ref *vsdb.Ref
	}

	eg, ctx2 := errgroup.WithContext(ctx)

	tuples := make([]*tuple, 0, len(stores))
	for _, s := range stores {
		s := s
		ch := make(chan vsdb.Ref)
		eg.Go(func() error {
			defer close(ch)
			return s.ListRefs(ctx2, vsdb.Zero, func(ref vsdb.Ref) error {
				select {
				case <-ctx2.Done():
					return ctx2.Err()
				case ch <- ref:
				}
				return nil
			})
		})
		tuples = append(tuples, &tuple{s: s, ch: ch})
	}

	errch := make(chan error, 1)
	go func() {
		errch <- eg.Wait()
		close(errch)
	}()

	var copied int

	// Each store whose current ref was consumed in the previous round
	// (initially all of them) advances to its next ref.
	advance := tuples
	for {
		for _, tup := range advance {
			select {
			case <-ctx.Done():
				return copied, ctx.Err()
			case ref, ok := <-tup.ch:
				if ok {
					ref := ref
					tup.ref = &ref
				} else {
					tup.ref = nil
				}
			}
		}

		sort.Slice(tuples, func(i, j int) bool {
			ri := tuples[i].ref
			rj := tuples[j].ref
			if ri != nil {
				if rj != nil {
					return ri.Less(*rj)
				}
				return true
			}
			return false
		})

		if tuples[0].ref == nil {
			// We've reached the end of input on all channels.
			return copied, <-errch
		}

		ref := *(tuples[0].ref)

		advance = []*tuple{tuples[0]}
		i := 1
		for i < len(tuples) && tuples[i].ref != nil && *(tuples[i].ref) == ref {
			advance = append(advance, tuples[i])
			i++
		}

		if i == len(tuples) {
			continue
		}

		blob, err := tuples[0].s.Get(ctx, ref)
		if err != nil {
			return copied, errors.Wrapf(err, "getting blob for %s", ref)
		}

		for _, tup := range tuples[i:] {
			_, added, err := tup.s.Put(ctx, blob)
			if err != nil {
				return copied, errors.Wrapf(err, "storing blob for %s", ref)
			}
			if added {
				copied++
			}
		}
	}
}
