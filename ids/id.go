// Package ids defines the fixed-size identifiers used throughout the
// consensus engine, ledger, and persistence layers: VertexId and AccountId
// are both 32-byte digests, kept as a single underlying type so the same
// comparison, ordering, and encoding helpers serve both.
package ids

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58"
)

// Len is the digest length produced by the hash adapter in package
// primitives and used for every VertexId/AccountId in the system.
const Len = 32

var errWrongLength = errors.New("ids: wrong byte length for ID")

// ID is a 32-byte digest. The zero value is the reserved "empty" ID; it is
// never a valid VertexId or AccountId produced by hashing real content.
type ID [Len]byte

// Empty is the zero ID, used as a sentinel in maps and as the parent
// reference of the genesis vertex's own non-existent parent slot.
var Empty ID

// FromBytes copies b into a new ID. b must be exactly Len bytes.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Len {
		return id, errWrongLength
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns a copy of the underlying bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, Len)
	copy(b, id[:])
	return b
}

// String renders the ID as base58, matching the human-readable identifier
// convention used throughout the pack's consensus implementations.
func (id ID) String() string {
	return base58.Encode(id[:])
}

// Hex renders the ID as lowercase hex, useful for log lines and WAL dumps
// where base58's variable width is inconvenient to scan.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Compare provides byte-lexicographic ordering, which is the deterministic
// tie-break rule required by the DAG store (insertion order at equal
// height) and the conflict registry (simultaneous-confidence tie-break).
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// Less reports whether id sorts strictly before other under Compare.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// IsEmpty reports whether id is the zero value.
func (id ID) IsEmpty() bool {
	return id == Empty
}

// AccountID identifies an account by its public-key fingerprint. It shares
// representation with ID because both are opaque 32-byte digests, but the
// distinct name keeps ledger code from accidentally mixing vertex and
// account identifiers.
type AccountID = ID

// VertexID identifies a vertex by the digest of its canonical encoding.
type VertexID = ID

// NodeID identifies a peer in the gossip/query network.
type NodeID = ID
