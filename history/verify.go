package history

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
)

// Problem is one defect found by Verify.
type Problem struct {
	Commit vsdb.Ref
	Name   string // the entry concerned, or "" for a problem with the commit itself
	Blob   vsdb.Ref
	Err    error
}

func (p Problem) String() string {
	if p.Name == "" {
		return fmt.Sprintf("commit %s: %s", p.Commit, p.Err)
	}
	return fmt.Sprintf("commit %s: %s (blob %s): %s", p.Commit, p.Name, p.Blob, p.Err)
}

// VerifyReport is the result of Verify.
type VerifyReport struct {
	Commits  int // commits reachable from HEAD and successfully decoded
	Blobs    int // distinct blobs checked
	Problems []Problem
}

// OK tells whether Verify found no problems.
func (v *VerifyReport) OK() bool {
	return len(v.Problems) == 0
}

// Verify checks the history reachable from HEAD:
// each commit must be present and decodable,
// and each blob it refers to must be present with content matching its ref.
// Verify reports problems rather than stopping at the first one;
// its error result is for failures that prevent checking at all.
func (r *Repo) Verify(ctx context.Context) (*VerifyReport, error) {
	rep := new(VerifyReport)

	head, ok, err := r.Head(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading HEAD")
	}
	if !ok {
		return rep, nil
	}

	checked := make(map[vsdb.Ref]error)
	err = r.Walk(ctx, head, func(ref vsdb.Ref, c *vsdb.Commit) error {
		rep.Commits++
		for _, e := range c.Entries {
			blobErr, ok := checked[e.Ref]
			if !ok {
				blobErr = r.checkBlob(ctx, e.Ref)
				checked[e.Ref] = blobErr
			}
			if blobErr != nil {
				rep.Problems = append(rep.Problems, Problem{Commit: ref, Name: e.Name, Blob: e.Ref, Err: blobErr})
			}
		}
		return nil
	})
	rep.Blobs = len(checked)

	var terr *TruncatedError
	if errors.As(err, &terr) {
		rep.Problems = append(rep.Problems, Problem{Commit: terr.At, Err: terr.Err})
		return rep, nil
	}
	return rep, err
}

func (r *Repo) checkBlob(ctx context.Context, ref vsdb.Ref) error {
	b, err := r.blobs.Get(ctx, ref)
	if err != nil {
		return err
	}
	if b.Ref() != ref {
		return vsdb.ErrCorruptObject
	}
	return nil
}
