package vsdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

type (
	// Blob is the type of a blob: the raw bytes of exactly one file.
	Blob []byte

	// Ref is the ref of a blob or commit: its sha256 hash.
	Ref [sha256.Size]byte
)

// Ref computes the Ref of a blob.
func (b Blob) Ref() Ref {
	return sha256.Sum256(b)
}

// Zero is the zero value of a Ref.
// It stands for "no ref," e.g. the parent of the first commit.
var Zero Ref

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero tells whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r == Zero
}

// Less tells whether r sorts before other.
func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

// FromHex parses a hex string into r.
func (r *Ref) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.Errorf("wrong length %d for ref %q", len(s), s)
	}
	_, err := hex.Decode(r[:], []byte(s))
	return errors.Wrapf(err, "decoding ref %q", s)
}

// RefFromBytes copies b into a Ref.
func RefFromBytes(b []byte) Ref {
	var out Ref
	copy(out[:], b)
	return out
}

// RefFromHex parses a hex string as a Ref.
func RefFromHex(s string) (Ref, error) {
	var out Ref
	err := out.FromHex(s)
	return out, err
}
