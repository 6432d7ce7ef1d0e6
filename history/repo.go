// Package history keeps a linear history of snapshots of a directory.
//
// A repository is a directory holding an object store
// (by default in its objects subdirectory),
// the HEAD reference file .vsdb_head,
// and optionally the configuration file .vsdb.
// Commit snapshots the regular files of a directory into a new commit and advances HEAD.
// Checkout restores a directory to the state recorded in a commit and moves HEAD there.
//
// Commit and Checkout hold an exclusive file lock on the repository for their duration.
// A second writer waits for the lock, with backoff, until its context ends.
// A lock left behind by a crashed process expires after the lock lease
// (DefaultLockLease unless set with WithLockLease).
package history

import (
	"context"
	stderrs "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobg/flock"
	"github.com/google/renameio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/config"
	"github.com/vsdb/vsdb/store"
	_ "github.com/vsdb/vsdb/store/file" // the default object store
)

// Names of files and directories in a repository root.
const (
	HeadFile = ".vsdb_head"
	LockFile = ".vsdb_lock"
	DataDir  = "data"
)

// DefaultLockLease is how long the repository lock is honored
// before it is considered abandoned.
// It must exceed the duration of the longest Commit or Checkout.
const DefaultLockLease = time.Hour

// Bounds of the wait between attempts to take a held lock.
const (
	minLockWait = 10 * time.Millisecond
	maxLockWait = time.Second
)

// ErrExists is the error returned by Init when the directory is already a repository.
var ErrExists = errors.New("repository already initialized")

// Repo is a versioned repository.
type Repo struct {
	root    string
	blobs   vsdb.Store
	commits vsdb.Store
	log     logrus.FieldLogger
	now     func() time.Time
	flocker flock.Locker
}

// Option configures a Repo in Open.
type Option func(*Repo)

// WithLogger sets the logger of a Repo.
// The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Repo) { r.log = l }
}

// WithClock sets the source of commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithLockLease sets how long the repository lock stays valid once taken.
func WithLockLease(d time.Duration) Option {
	return func(r *Repo) { r.flocker.LockDur = d }
}

// WithStores makes a Repo use the given stores for blobs and commits
// instead of the ones named in its configuration.
// The two must be distinct address spaces.
func WithStores(blobs, commits vsdb.Store) Option {
	return func(r *Repo) {
		r.blobs = blobs
		r.commits = commits
	}
}

// Open opens the repository rooted at dir.
// The object stores are created from the configuration file in dir,
// or from config.Default() if there is none.
// Open does not require Init to have been called:
// an empty directory is a repository with no commits.
func Open(ctx context.Context, dir string, opts ...Option) (*Repo, error) {
	r := &Repo{
		root:    filepath.Clean(dir),
		log:     logrus.StandardLogger(),
		now:     time.Now,
		flocker: flock.Locker{
			Lockfile: func(path string) string { return path },
			LockDur:  DefaultLockLease,
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.blobs == nil || r.commits == nil {
		conf, _, err := config.LoadDir(r.root)
		if err != nil {
			return nil, errors.Wrap(err, "loading config")
		}
		objconf := conf.ObjectsConfig(r.root)
		r.blobs, err = store.FromConfig(ctx, objconf, store.Blobs)
		if err != nil {
			return nil, errors.Wrap(err, "creating blob store")
		}
		r.commits, err = store.FromConfig(ctx, objconf, store.Commits)
		if err != nil {
			return nil, errors.Wrap(err, "creating commit store")
		}
	}

	return r, nil
}

// Init makes dir into a repository:
// it creates dir and its data and objects subdirectories,
// and writes a default configuration file.
// It returns ErrExists if dir already has a configuration file.
func Init(dir string, now time.Time) error {
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return errors.Wrap(ErrExists, dir)
	}
	for _, sub := range []string{DataDir, "objects"} {
		p := filepath.Join(dir, sub)
		if err := os.MkdirAll(p, 0755); err != nil {
			return vsdb.NewIOError("creating", p, err)
		}
	}
	return config.New(now).Write(path)
}

// Root is the repository's root directory.
func (r *Repo) Root() string { return r.root }

// DataDir is the conventional snapshot directory of the repository.
func (r *Repo) DataDir() string { return filepath.Join(r.root, DataDir) }

// Blobs is the store holding file contents.
func (r *Repo) Blobs() vsdb.Store { return r.blobs }

// Commits is the store holding commit records.
func (r *Repo) Commits() vsdb.Store { return r.commits }

// Close releases the repository's stores.
// Stores that need it (such as replica stores with pending writes) implement io.Closer.
func (r *Repo) Close() error {
	var errs []error
	for _, s := range []vsdb.Store{r.blobs, r.commits} {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return stderrs.Join(errs...)
}

// metadataFilter returns a function that reports whether a file named name in dir
// belongs to the repository itself.
// Such files are only possible when dir is the repository root,
// and are never snapshotted, cleared, or overwritten.
func (r *Repo) metadataFilter(dir string) func(name string) bool {
	if !sameDir(dir, r.root) {
		return func(string) bool { return false }
	}
	return func(name string) bool {
		switch name {
		case HeadFile, LockFile, config.FileName:
			return true
		}
		return false
	}
}

func sameDir(a, b string) bool {
	ainfo, err := os.Stat(a)
	if err != nil {
		return false
	}
	binfo, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ainfo, binfo)
}

func (r *Repo) headPath() string { return filepath.Join(r.root, HeadFile) }
func (r *Repo) lockPath() string { return filepath.Join(r.root, LockFile) }

// Head returns the ref of the current commit.
// The boolean is false if no commit has been made yet.
func (r *Repo) Head(_ context.Context) (vsdb.Ref, bool, error) {
	path := r.headPath()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return vsdb.Zero, false, nil
	}
	if err != nil {
		return vsdb.Zero, false, vsdb.NewIOError("reading", path, err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return vsdb.Zero, false, nil
	}
	ref, err := vsdb.RefFromHex(s)
	if err != nil {
		return vsdb.Zero, false, errors.Wrapf(err, "parsing %s", path)
	}
	return ref, true, nil
}

// The new HEAD is written to a temporary file and renamed into place,
// so a crash leaves either the old value or the new one.
func (r *Repo) setHead(ref vsdb.Ref) error {
	path := r.headPath()
	err := renameio.WriteFile(path, []byte(ref.String()+"\n"), 0644)
	return vsdb.NewIOError("writing", path, err)
}

// lock acquires the repository's exclusive lock,
// waiting while another writer holds it.
// The caller must call the returned function to release it.
func (r *Repo) lock(ctx context.Context) (func(), error) {
	path := r.lockPath()
	if err := os.MkdirAll(r.root, 0755); err != nil {
		return nil, vsdb.NewIOError("creating", r.root, err)
	}

	wait := minLockWait
	for {
		err := r.flocker.Lock(path)
		if err == nil {
			break
		}
		if !errors.Is(err, flock.ErrLocked) {
			return nil, errors.Wrapf(err, "locking %s", path)
		}
		r.log.WithField("path", path).Debug("repository locked, waiting")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Wrapf(ctx.Err(), "waiting for lock %s", path)
		case <-t.C:
		}
		if wait *= 2; wait > maxLockWait {
			wait = maxLockWait
		}
	}

	return func() {
		if err := r.flocker.Unlock(path); err != nil {
			r.log.WithError(err).WithField("path", path).Error("unlocking repository")
		}
	}, nil
}

// loadCommit gets and decodes the commit at ref,
// checking that its content hashes to ref.
func (r *Repo) loadCommit(ctx context.Context, ref vsdb.Ref) (*vsdb.Commit, error) {
	b, err := r.commits.Get(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "getting commit %s", ref)
	}
	if b.Ref() != ref {
		return nil, vsdb.WithKind(vsdb.ErrMalformedCommit, errors.Wrapf(vsdb.ErrCorruptObject, "commit %s", ref))
	}
	c, err := vsdb.DecodeCommit(b)
	return c, errors.Wrapf(err, "decoding commit %s", ref)
}
