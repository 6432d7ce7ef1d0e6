package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/config"
	"github.com/vsdb/vsdb/store"
)

// cat writes a blob to stdout.
// With -commit, the argument names a commit and its encoded form is written instead.
func (c maincmd) cat(ctx context.Context, fs *flag.FlagSet, args []string) error {
	commit := fs.Bool("commit", false, "read from the commit store")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: cat [-commit] REF")
	}

	r, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.closeRepo(r)

	var (
		s   vsdb.Getter = r.Blobs()
		ref vsdb.Ref
	)
	if *commit {
		s = r.Commits()
		ref, err = r.Resolve(ctx, fs.Arg(0))
	} else {
		ref, err = vsdb.RefFromHex(fs.Arg(0))
	}
	if err != nil {
		return errors.Wrapf(err, "parsing %s", fs.Arg(0))
	}

	b, err := s.Get(ctx, ref)
	if err != nil {
		return errors.Wrapf(err, "getting %s", ref)
	}
	_, err = c.out.Write(b)
	return errors.Wrap(err, "writing output")
}

func (c maincmd) verify(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	r, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.closeRepo(r)
	rep, err := r.Verify(ctx)
	if err != nil {
		return err
	}
	for _, p := range rep.Problems {
		fmt.Fprintln(c.out, p)
	}
	fmt.Fprintf(c.out, "%d commits, %d blobs checked\n", rep.Commits, rep.Blobs)
	if !rep.OK() {
		return fmt.Errorf("%d problems found", len(rep.Problems))
	}
	return nil
}

// sync copies the repository's objects to the stores described by another config file,
// and vice versa.
func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: sync CONFIGFILE")
	}
	path := fs.Arg(0)

	r, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.closeRepo(r)
	conf, err := config.Load(path)
	if err != nil {
		return errors.Wrapf(err, "loading %s", path)
	}
	objconf := conf.ObjectsConfig(filepath.Dir(path))

	for _, pair := range []struct {
		ns  string
		src vsdb.Store
	}{
		{ns: store.Blobs, src: r.Blobs()},
		{ns: store.Commits, src: r.Commits()},
	} {
		dst, err := store.FromConfig(ctx, objconf, pair.ns)
		if err != nil {
			return errors.Wrapf(err, "creating %s store from %s", pair.ns, path)
		}
		n, err := store.Sync(ctx, []vsdb.Store{pair.src, dst})
		if cl, ok := dst.(io.Closer); ok {
			if cerr := cl.Close(); err == nil {
				err = cerr
			}
		}
		if err != nil {
			return errors.Wrapf(err, "syncing %s", pair.ns)
		}
		fmt.Fprintf(c.out, "%s: %d copied\n", pair.ns, n)
	}
	return nil
}
