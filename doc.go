// Package vsdb is the versioned-storage core of a small database:
// a content-addressable object store
// layered with a linear commit history.
//
// An object store stores arbitrarily sized sequences of bytes,
// or _blobs_,
// and indexes them by their hash,
// which is used as a unique key.
// This key is called the blob’s reference, or _ref_.
// This module uses sha2-256,
// so the chance of two distinct blobs sharing a ref is negligible.
// Storing the same bytes twice yields the same ref
// and occupies one stored object.
//
// A Commit records the ref of every file in a directory at a moment in time,
// plus the ref of the previous commit.
// A commit is itself stored as an object,
// keyed by the hash of its canonical encoding,
// in an address space separate from that of file blobs.
// Commits form a singly linked list from the newest (HEAD) to the first.
//
// The history subpackage snapshots a directory into a commit,
// lists the history,
// and restores a directory to the state of an earlier commit.
// Object store implementations live under the store subpackage.
package vsdb
