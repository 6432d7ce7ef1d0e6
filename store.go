package vsdb

import "context"

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a blob by its ref.
	// It returns ErrNotFound if no object exists at ref.
	// The caller owns the returned bytes.
	Get(context.Context, Ref) (Blob, error)

	// Has tells whether an object exists at ref.
	Has(context.Context, Ref) (bool, error)

	// ListRefs calls a function for each ref in the store in lexicographic order,
	// beginning with the first ref _after_ the specified one.
	//
	// If the callback function returns an error,
	// ListRefs exits with that error.
	ListRefs(context.Context, Ref, func(r Ref) error) error
}

// Store is a content-addressed object store.
// It stores byte sequences - "blobs" - of arbitrary length.
// Each blob can be retrieved using its "ref" as a lookup key.
// A ref is simply the SHA2-256 hash of the blob's content.
//
// Objects are write-once:
// there is no way to update or delete one.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's ref and a boolean that is true iff the blob had to be added.
	// Storing the same content again is a no-op.
	Put(ctx context.Context, b Blob) (ref Ref, added bool, err error)
}
