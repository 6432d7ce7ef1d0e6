package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/vsdb/vsdb/history"
)

func (c maincmd) initcmd(_ context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if err := history.Init(c.root, time.Now()); err != nil {
		return errors.Wrapf(err, "initializing %s", c.root)
	}
	fmt.Fprintf(c.out, "initialized %s\n", c.root)
	return nil
}

func (c maincmd) commit(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		msg = fs.String("m", "", "commit message")
		dir = fs.String("dir", "", "directory to snapshot (default: ROOT/data)")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *msg == "" && fs.NArg() > 0 {
		*msg = fs.Arg(0)
	}

	r, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.closeRepo(r)
	ref, err := r.Commit(ctx, *msg, c.dataDir(*dir))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, ref)
	return nil
}

func (c maincmd) checkout(ctx context.Context, fs *flag.FlagSet, args []string) error {
	dir := fs.String("dir", "", "directory to restore (default: ROOT/data)")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: checkout [-dir DIR] COMMIT")
	}

	r, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.closeRepo(r)
	ref, err := r.Resolve(ctx, fs.Arg(0))
	if err != nil {
		return errors.Wrapf(err, "resolving %s", fs.Arg(0))
	}
	res, err := r.Checkout(ctx, ref, c.dataDir(*dir))
	if err != nil {
		return err
	}
	for _, ferr := range res.Failed {
		fmt.Fprintf(c.out, "not restored: %s\n", ferr)
	}
	if res.Partial() {
		return fmt.Errorf("checked out %s with %d of %d files missing", ref, len(res.Failed), len(res.Commit.Entries))
	}
	fmt.Fprintf(c.out, "checked out %s (%d files)\n", ref, len(res.Restored))
	return nil
}

func (c maincmd) head(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	r, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.closeRepo(r)
	ref, ok, err := r.Head(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no commits")
	}
	fmt.Fprintln(c.out, ref)
	return nil
}
