package primitives

import (
	"golang.org/x/crypto/blake2b"

	"github.com/qudag/qudag/ids"
)

// Hasher computes the collision-resistant digest every VertexId is derived
// from (§3 "VertexId ... computed via the quantum-resistant hash").
type Hasher interface {
	Hash(data []byte) (ids.ID, error)
}

// Blake2bHasher is the default Hasher backend. BLAKE3 is assumed available
// as a black-box per §1; blake2b-256 from golang.org/x/crypto is the
// concrete, already-vetted 32-byte hash this module ships so the rest of the
// tree has something real to run against, and is wired behind the same
// Hasher contract a BLAKE3 backend would satisfy.
type Blake2bHasher struct{}

var _ Hasher = Blake2bHasher{}

// Hash implements Hasher.
func (Blake2bHasher) Hash(data []byte) (ids.ID, error) {
	sum := blake2b.Sum256(data)
	return ids.ID(sum), nil
}

// HashConcat hashes the concatenation of parts, joining them into one
// buffer sized up front before hashing.
func HashConcat(h Hasher, parts ...[]byte) (ids.ID, error) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return h.Hash(buf)
}
