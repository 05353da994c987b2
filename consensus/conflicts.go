// Package consensus implements the conflict registry and the QR-Avalanche
// voting engine from §4.3-§4.4.
package consensus

import (
	"errors"
	"sync"

	"github.com/qudag/qudag/choices"
	"github.com/qudag/qudag/ids"
)

var (
	ErrAlreadyFinalized = errors.New("consensus: conflict set already has a finalized member")
	ErrUnknownVertex    = errors.New("consensus: vertex not registered in any conflict set")
)

// ConflictRegistry maps mutable resources (account+nonce, config-slot) to
// the conflict sets competing for them. A conflict key is plain text
// (mutation.ConflictKey.String()) so this package doesn't need to import the
// mutation package's struct shape.
type ConflictRegistry struct {
	mu sync.Mutex

	// key -> every vertex ever registered under it, decided or not (decided
	// records which members are finalized)
	sets map[string]ids.Set[ids.VertexID]
	// vertex -> key, for O(1) siblings/finalize lookups
	keyOf map[ids.VertexID]string
	// vertex -> finalized status once decided (kept so Siblings/queries can
	// answer for already-decided vertices without consulting the DAG store)
	decided map[ids.VertexID]choices.Status
	// key -> the Accepted member, once one exists
	winner map[string]ids.VertexID
	// key -> the currently-preferred live member, per §4.4's preference
	// tracking (exactly one sibling is preferred at a time)
	preferredOf map[string]ids.VertexID
}

// NewConflictRegistry returns an empty registry.
func NewConflictRegistry() *ConflictRegistry {
	return &ConflictRegistry{
		sets:        make(map[string]ids.Set[ids.VertexID]),
		keyOf:       make(map[ids.VertexID]string),
		decided:     make(map[ids.VertexID]choices.Status),
		winner:      make(map[string]ids.VertexID),
		preferredOf: make(map[string]ids.VertexID),
	}
}

// KeyOf returns the conflict key vtxID was registered under.
func (r *ConflictRegistry) KeyOf(vtxID ids.VertexID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keyOf[vtxID]
	return k, ok
}

// PreferredOf returns the currently-preferred live member of key's conflict
// set, if any vertex has been registered under it yet.
func (r *ConflictRegistry) PreferredOf(key string) (ids.VertexID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.preferredOf[key]
	return v, ok
}

// SetPreferred switches key's preferred member to vtxID (§4.4: "switch
// preference to v"). The caller is responsible for updating the
// Confidence.Preference flags on both the old and new preferred vertices.
func (r *ConflictRegistry) SetPreferred(key string, vtxID ids.VertexID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferredOf[key] = vtxID
}

// Register adds vtxID to the conflict set for key. If the set already has a
// finalized Accepted winner, the new vertex is registered directly as
// Rejected: at most one Accepted per conflict set, and a late entrant
// into an already-decided slot can never win.
func (r *ConflictRegistry) Register(key string, vtxID ids.VertexID) (preferred bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keyOf[vtxID]; exists {
		return false, nil
	}

	set, ok := r.sets[key]
	if !ok {
		set = ids.NewSet[ids.VertexID](2)
		r.sets[key] = set
	}

	hadSiblings := set.Len() > 0
	set.Add(vtxID)
	r.keyOf[vtxID] = key

	if w, decided := r.winner[key]; decided {
		r.decided[vtxID] = choices.Rejected
		return w == vtxID, nil
	}

	// §4.4 preference initialization: preferred iff no sibling existed when
	// this vertex was first seen.
	return !hadSiblings, nil
}

// Siblings returns every other live (non-finalized) vertex sharing vtxID's
// conflict set.
func (r *ConflictRegistry) Siblings(vtxID ids.VertexID) []ids.VertexID {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keyOf[vtxID]
	if !ok {
		return nil
	}
	set := r.sets[key]
	out := make([]ids.VertexID, 0, set.Len())
	for id := range set {
		if _, done := r.decided[id]; id != vtxID && !done {
			out = append(out, id)
		}
	}
	return out
}

// HasSiblings reports whether vtxID shares its conflict set with any other
// registered vertex, decided or not.
func (r *ConflictRegistry) HasSiblings(vtxID ids.VertexID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keyOf[vtxID]
	if !ok {
		return false
	}
	return r.sets[key].Len() > 1
}

// Finalize marks vtxID Accepted and every live sibling Rejected, atomically
// under the registry's lock (the "two-phase lock" from §5's shared-resource
// policy collapses to a single critical section here since the registry
// owns both outcomes). Returns the list of newly-rejected siblings.
func (r *ConflictRegistry) Finalize(vtxID ids.VertexID) (rejected []ids.VertexID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keyOf[vtxID]
	if !ok {
		return nil, ErrUnknownVertex
	}
	if _, already := r.winner[key]; already {
		return nil, ErrAlreadyFinalized
	}

	r.winner[key] = vtxID
	r.decided[vtxID] = choices.Accepted

	set := r.sets[key]
	for id := range set {
		if id == vtxID {
			continue
		}
		r.decided[id] = choices.Rejected
		rejected = append(rejected, id)
	}
	return rejected, nil
}

// Decision reports the registry's view of vtxID's decision, Undecided if it
// hasn't been finalized (or isn't registered at all).
func (r *ConflictRegistry) Decision(vtxID ids.VertexID) choices.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.decided[vtxID]; ok {
		return s
	}
	return choices.Undecided
}

// Winner returns the Accepted member of key's conflict set, if one exists.
func (r *ConflictRegistry) Winner(key string) (ids.VertexID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.winner[key]
	return w, ok
}

// TieBreak implements §4.3's deterministic simultaneous-confidence
// tie-break: the smaller VertexId byte-lexicographically wins.
func TieBreak(a, b ids.VertexID) ids.VertexID {
	if a.Less(b) {
		return a
	}
	return b
}
