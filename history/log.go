package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
)

// TruncatedError reports that a history walk stopped early
// because the commit at At could not be loaded.
// Err (available via errors.Unwrap) says why;
// it is typically vsdb.ErrNotFound or vsdb.ErrMalformedCommit.
type TruncatedError struct {
	At  vsdb.Ref
	Err error
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("history truncated at %s: %s", e.At, e.Err)
}

func (e *TruncatedError) Unwrap() error {
	return e.Err
}

var errCycle = errors.New("commit cycle")

// Walk calls f on each commit from the one at `from` back to the first one, newest first.
// If f returns an error, Walk stops and returns it.
// If a commit in the chain is missing or malformed,
// Walk stops and returns a *TruncatedError.
func (r *Repo) Walk(ctx context.Context, from vsdb.Ref, f func(vsdb.Ref, *vsdb.Commit) error) error {
	seen := make(map[vsdb.Ref]struct{})
	for ref := from; !ref.IsZero(); {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := seen[ref]; ok {
			return &TruncatedError{At: ref, Err: errCycle}
		}
		seen[ref] = struct{}{}

		c, err := r.loadCommit(ctx, ref)
		if err != nil {
			return &TruncatedError{At: ref, Err: err}
		}
		if err = f(ref, c); err != nil {
			return err
		}
		ref = c.Parent
	}
	return nil
}

// Log returns the history from HEAD back to the first commit, newest first.
// It returns nothing if there are no commits.
//
// If the chain is broken by a missing or malformed commit,
// Log returns the commits newer than the break
// together with a *TruncatedError.
func (r *Repo) Log(ctx context.Context) ([]*vsdb.Commit, error) {
	head, ok, err := r.Head(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading HEAD")
	}
	if !ok {
		return nil, nil
	}

	var commits []*vsdb.Commit
	err = r.Walk(ctx, head, func(_ vsdb.Ref, c *vsdb.Commit) error {
		commits = append(commits, c)
		return nil
	})
	var terr *TruncatedError
	if errors.As(err, &terr) {
		r.log.WithField("at", terr.At).WithError(terr.Err).Warn("history truncated")
	}
	return commits, err
}

// Show loads the commit at ref.
// If there is none, the error satisfies errors.Is(err, vsdb.ErrCommitNotFound).
// If the stored commit does not hash to ref or cannot be decoded,
// the error satisfies errors.Is(err, vsdb.ErrMalformedCommit) instead.
func (r *Repo) Show(ctx context.Context, ref vsdb.Ref) (*vsdb.Commit, error) {
	c, err := r.loadCommit(ctx, ref)
	if errors.Is(err, vsdb.ErrNotFound) {
		return nil, vsdb.WithKind(vsdb.ErrCommitNotFound, err)
	}
	return c, err
}

// MinPrefix is the shortest abbreviated commit ref that Resolve accepts.
const MinPrefix = 4

// Resolve turns a string naming a commit into its ref.
// The string may be "HEAD",
// a full hex ref,
// or a prefix (at least MinPrefix hex digits) of the ref of exactly one stored commit.
func (r *Repo) Resolve(ctx context.Context, s string) (vsdb.Ref, error) {
	if s == "HEAD" {
		head, ok, err := r.Head(ctx)
		if err != nil {
			return vsdb.Zero, err
		}
		if !ok {
			return vsdb.Zero, errors.Wrap(vsdb.ErrCommitNotFound, "no HEAD")
		}
		return head, nil
	}

	s = strings.ToLower(s)
	if len(s) == 2*len(vsdb.Zero) {
		return vsdb.RefFromHex(s)
	}
	if len(s) < MinPrefix || len(s) > 2*len(vsdb.Zero) || strings.Trim(s, "0123456789abcdef") != "" {
		return vsdb.Zero, fmt.Errorf("bad commit name %q", s)
	}

	var (
		matches []vsdb.Ref
		errStop = errors.New("stop")
	)
	err := r.commits.ListRefs(ctx, vsdb.Zero, func(ref vsdb.Ref) error {
		h := ref.String()
		if strings.HasPrefix(h, s) {
			matches = append(matches, ref)
		} else if h > s {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return vsdb.Zero, errors.Wrap(err, "listing commits")
	}

	switch len(matches) {
	case 0:
		return vsdb.Zero, errors.Wrapf(vsdb.ErrCommitNotFound, "no commit matches %s", s)
	case 1:
		return matches[0], nil
	}
	return vsdb.Zero, fmt.Errorf("%s is ambiguous (%d commits match)", s, len(matches))
}
