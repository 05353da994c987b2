// Package vertex implements the DAG store: vertex representation,
// canonical bit-exact encoding (§6), and the insert/get/tips/ancestors/
// mark_decision operations over an in-memory store of vertices.
package vertex

import (
	"errors"
	"time"

	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/mutation"
)

// MaxParents bounds parent_count per §6 (1 byte field, and §4.5 recommends
// 2-4 parents in practice).
const MaxParents = 8

var (
	ErrNoParents        = errors.New("vertex: must have at least one parent")
	ErrTooManyParents   = errors.New("vertex: exceeds MaxParents")
	ErrSelfParent       = errors.New("vertex: cannot be its own parent")
	ErrDuplicateParent  = errors.New("vertex: duplicate parent reference")
	ErrBadHeight        = errors.New("vertex: height must be max(parent heights)+1")
)

// Vertex is the DAG node from §3. Creator/CreatorSignature authenticate the
// submitter; Confidence is the only field consensus is allowed to mutate
// after insertion.
type Vertex struct {
	ID               ids.VertexID
	Parents          []ids.VertexID
	Payload          *mutation.Mutation
	Creator          [32]byte // creator public-key digest, per §6 header
	CreatorSignature []byte
	CreationTime     time.Time
	Height           uint64

	Confidence Confidence
}

// GenesisID is the sentinel parent of the first real vertex.
var GenesisID = ids.Empty

// Validate checks the structural invariants that must hold independent of
// any store (self-parenting, duplicate parents, parent bound) — §4.2 "Edge
// cases."
func (v *Vertex) Validate() error {
	if len(v.Parents) == 0 {
		return ErrNoParents
	}
	if len(v.Parents) > MaxParents {
		return ErrTooManyParents
	}
	seen := make(map[ids.VertexID]struct{}, len(v.Parents))
	for _, p := range v.Parents {
		if p == v.ID {
			return ErrSelfParent
		}
		if _, dup := seen[p]; dup {
			return ErrDuplicateParent
		}
		seen[p] = struct{}{}
	}
	return nil
}
