package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vsdb/vsdb"
)

func TestConcurrentCommits(t *testing.T) {
	var (
		ctx  = context.Background()
		r, _ = newTestRepo(t)
		dir  = r.DataDir()
	)
	writeFiles(t, dir, map[string]string{"t.tbl": "rows"})

	const n = 8

	var (
		wg   sync.WaitGroup
		errs = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			logger, _ := test.NewNullLogger()
			rr, err := Open(ctx, r.Root(), WithLogger(logger))
			if err != nil {
				errs <- err
				return
			}
			_, err = rr.Commit(ctx, fmt.Sprintf("commit %d", i), dir)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}

	log, err := r.Log(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != n {
		t.Errorf("got %d commits in history, want %d", len(log), n)
	}
}

func TestLockWait(t *testing.T) {
	var (
		ctx  = context.Background()
		r, _ = newTestRepo(t)
		dir  = r.DataDir()
	)

	unlock, err := r.lock(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(r.Root(), LockFile)); err != nil {
		t.Errorf("lock file: %s", err)
	}
	if _, err := os.Stat(filepath.Join(r.Root(), LockFile+".lock")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected companion lock file (err %v)", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = r.Commit(ctx2, "blocked", dir)
	if !errors.Is(err, vsdb.ErrCommitFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want ErrCommitFailed caused by the deadline", err)
	}

	// A commit waiting on the lock proceeds once it is released.
	done := make(chan error, 1)
	go func() {
		_, err := r.Commit(ctx, "after", dir)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("commit did not proceed after the lock was released")
	}

	if _, ok, _ := r.Head(ctx); !ok {
		t.Error("no HEAD after commit")
	}
}
