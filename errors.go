package vsdb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent ref.
	ErrNotFound = errors.New("object not found")

	// ErrMalformedCommit is the error returned when a commit record cannot be decoded.
	ErrMalformedCommit = errors.New("malformed commit")

	// ErrCommitNotFound is the error returned when the target of a checkout
	// is missing or cannot be decoded.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrCommitFailed wraps any error that prevents a commit from completing.
	ErrCommitFailed = errors.New("commit failed")

	// ErrCorruptObject is the error for an object whose content does not hash to its ref.
	ErrCorruptObject = errors.New("object content does not match its ref")
)

// IOError is a filesystem-level failure on a specific path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError produces an *IOError,
// or nil if err is nil.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// KindError pairs one of the sentinel error kinds in this package with its cause.
// Both are visible to errors.Is and errors.As.
type KindError struct {
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *KindError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// WithKind wraps err so that errors.Is(result, kind) holds.
// If err already has that kind it is returned unchanged.
func WithKind(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &KindError{Kind: kind, Err: err}
}
