package history

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vsdb/vsdb"
)

// Commit snapshots the regular files directly under dir into a new commit
// whose parent is the current HEAD,
// and advances HEAD to it.
//
// Only the top level of dir is snapshotted,
// and anything in it that is not a regular file is skipped.
// If dir is the repository root, the repository's own files
// (HEAD, the lock, and the configuration) are skipped too.
// (The data directory of a database is a flat collection of table files.)
//
// If Commit returns an error,
// errors.Is(err, vsdb.ErrCommitFailed) is true
// and HEAD is unchanged.
// Blobs stored before the failure remain in the store, unreferenced and harmless.
func (r *Repo) Commit(ctx context.Context, message, dir string) (vsdb.Ref, error) {
	ref, err := r.commit(ctx, message, dir)
	if err != nil {
		return vsdb.Zero, vsdb.WithKind(vsdb.ErrCommitFailed, err)
	}
	return ref, nil
}

func (r *Repo) commit(ctx context.Context, message, dir string) (vsdb.Ref, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return vsdb.Zero, err
	}
	defer unlock()

	c := &vsdb.Commit{
		Message:   message,
		Timestamp: r.now().Format(vsdb.TimeLayout),
	}

	c.Entries, err = r.snapshot(ctx, dir)
	if err != nil {
		return vsdb.Zero, err
	}
	if err = c.Validate(); err != nil {
		return vsdb.Zero, errors.Wrapf(err, "snapshotting %s", dir)
	}
	c.SortEntries()

	parent, ok, err := r.Head(ctx)
	if err != nil {
		return vsdb.Zero, errors.Wrap(err, "reading HEAD")
	}
	if ok {
		c.Parent = parent
	}

	ref, _, err := r.commits.Put(ctx, c.Encode())
	if err != nil {
		return vsdb.Zero, errors.Wrap(err, "storing commit")
	}

	if err = r.setHead(ref); err != nil {
		return vsdb.Zero, errors.Wrap(err, "updating HEAD")
	}

	r.log.WithFields(logrus.Fields{
		"commit": ref,
		"parent": c.Parent,
		"files":  len(c.Entries),
	}).Info("committed")

	return ref, nil
}

// snapshot stores every regular file directly under dir as a blob.
func (r *Repo) snapshot(ctx context.Context, dir string) ([]vsdb.Entry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, vsdb.NewIOError("reading dir", dir, err)
	}

	var (
		entries    []vsdb.Entry
		isMetadata = r.metadataFilter(dir)
	)
	for _, dirent := range dirents {
		if !dirent.Type().IsRegular() {
			r.log.WithField("name", dirent.Name()).Debug("skipping non-regular file")
			continue
		}
		if isMetadata(dirent.Name()) {
			r.log.WithField("name", dirent.Name()).Debug("skipping repository file")
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, dirent.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, vsdb.NewIOError("reading", path, err)
		}

		ref, added, err := r.blobs.Put(ctx, b)
		if err != nil {
			return nil, errors.Wrapf(err, "storing %s", path)
		}
		r.log.WithFields(logrus.Fields{
			"name":  dirent.Name(),
			"blob":  ref,
			"added": added,
		}).Debug("stored file")

		entries = append(entries, vsdb.Entry{Name: dirent.Name(), Ref: ref})
	}
	return entries, nil
}
