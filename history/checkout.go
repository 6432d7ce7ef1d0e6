package history

import (
	"context"
	stderrs "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vsdb/vsdb"
)

// FileError is the failure to restore one file during Checkout.
type FileError struct {
	Name string
	Ref  vsdb.Ref
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("restoring %s (blob %s): %s", e.Name, e.Ref, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// CheckoutResult describes the outcome of a Checkout.
type CheckoutResult struct {
	Ref      vsdb.Ref
	Commit   *vsdb.Commit
	Restored []string     // names of files written, in commit order
	Failed   []*FileError // files that could not be restored
}

// Partial tells whether some files of the commit could not be restored.
func (res *CheckoutResult) Partial() bool {
	return len(res.Failed) > 0
}

// Err combines the per-file failures into one error,
// or returns nil if there were none.
func (res *CheckoutResult) Err() error {
	errs := make([]error, 0, len(res.Failed))
	for _, f := range res.Failed {
		errs = append(errs, f)
	}
	return stderrs.Join(errs...)
}

// Checkout restores dir to the state recorded in the commit at ref
// and moves HEAD to that commit.
//
// Checkout is destructive:
// every regular file in dir is deleted before the commit's files are written,
// with no backup of uncommitted changes.
// If dir is the repository root, the repository's own files are left alone,
// and a commit entry with one of their names is reported as failed.
//
// If the commit cannot be loaded,
// Checkout returns an error satisfying errors.Is(err, vsdb.ErrCommitNotFound)
// and dir is untouched.
//
// A file whose blob is missing or unreadable does not stop the checkout.
// It is logged, recorded in the result's Failed list,
// and the remaining files are still restored.
// HEAD moves to ref even then;
// callers that need all-or-nothing semantics should check result.Partial().
//
// Once dir has been cleared,
// cancellation of ctx is ignored until the restore is complete,
// so a canceled checkout never leaves dir half-written.
func (r *Repo) Checkout(ctx context.Context, ref vsdb.Ref, dir string) (*CheckoutResult, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := r.loadCommit(ctx, ref)
	if err != nil {
		return nil, vsdb.WithKind(vsdb.ErrCommitNotFound, err)
	}

	if err = os.MkdirAll(dir, 0755); err != nil {
		return nil, vsdb.NewIOError("creating", dir, err)
	}
	isMetadata := r.metadataFilter(dir)
	if err = clearDir(dir, isMetadata); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	res := &CheckoutResult{Ref: ref, Commit: c}
	for _, e := range c.Entries {
		var err error
		if isMetadata(e.Name) {
			err = errReserved
		} else {
			err = r.restore(ctx, e, dir)
		}
		if err != nil {
			ferr := &FileError{Name: e.Name, Ref: e.Ref, Err: err}
			r.log.WithFields(logrus.Fields{
				"name": e.Name,
				"blob": e.Ref,
			}).WithError(err).Warn("failed to restore file")
			res.Failed = append(res.Failed, ferr)
			continue
		}
		res.Restored = append(res.Restored, e.Name)
	}

	if err = r.setHead(ref); err != nil {
		return res, errors.Wrap(err, "updating HEAD")
	}

	r.log.WithFields(logrus.Fields{
		"commit":   ref,
		"restored": len(res.Restored),
		"failed":   len(res.Failed),
	}).Info("checked out")

	return res, nil
}

func (r *Repo) restore(ctx context.Context, e vsdb.Entry, dir string) error {
	b, err := r.blobs.Get(ctx, e.Ref)
	if err != nil {
		return err
	}
	if b.Ref() != e.Ref {
		return vsdb.ErrCorruptObject
	}
	path := filepath.Join(dir, e.Name)
	return vsdb.NewIOError("writing", path, renameio.WriteFile(path, b, 0644))
}

var errReserved = errors.New("name reserved for a repository file")

// clearDir removes every regular file directly under dir
// except those for which keep returns true.
func clearDir(dir string, keep func(string) bool) error {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return vsdb.NewIOError("reading dir", dir, err)
	}
	for _, dirent := range dirents {
		if !dirent.Type().IsRegular() || keep(dirent.Name()) {
			continue
		}
		path := filepath.Join(dir, dirent.Name())
		if err := os.Remove(path); err != nil {
			return vsdb.NewIOError("removing", path, err)
		}
	}
	return nil
}
