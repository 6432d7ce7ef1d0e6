package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/history"
)

func (c maincmd) logcmd(ctx context.Context, fs *flag.FlagSet, args []string) error {
	oneline := fs.Bool("oneline", false, "one line per commit")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	r, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.closeRepo(r)
	commits, err := r.Log(ctx)
	for _, commit := range commits {
		if *oneline {
			fmt.Fprintf(c.out, "%s %s %s\n", commit.Ref().String()[:12], commit.Timestamp, commit.Message)
			continue
		}
		printCommit(c.out, commit)
		fmt.Fprintln(c.out)
	}

	var terr *history.TruncatedError
	if errors.As(err, &terr) {
		fmt.Fprintf(c.out, "(history ends at commit %s: %s)\n", terr.At, terr.Err)
		return nil
	}
	return err
}

func (c maincmd) show(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	name := "HEAD"
	if fs.NArg() > 0 {
		name = fs.Arg(0)
	}

	r, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.closeRepo(r)
	ref, err := r.Resolve(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", name)
	}
	commit, err := r.Show(ctx, ref)
	if err != nil {
		return err
	}
	printCommit(c.out, commit)
	for _, e := range commit.Entries {
		fmt.Fprintf(c.out, "    %s %s\n", e.Ref, e.Name)
	}
	return nil
}

func printCommit(w io.Writer, commit *vsdb.Commit) {
	fmt.Fprintf(w, "commit %s\n", commit.Ref())
	if !commit.Parent.IsZero() {
		fmt.Fprintf(w, "parent %s\n", commit.Parent)
	}
	fmt.Fprintf(w, "date   %s\n", commit.Timestamp)
	fmt.Fprintf(w, "files  %d\n", len(commit.Entries))
	fmt.Fprintf(w, "\n    %s\n", commit.Message)
}
