// Package validators models the validator-set snapshot peer sampling draws
// from (§4.11: "Peer sampling draws from a validator_set snapshot
// refreshed at most once per consensus round"), grounded in
// snow/validators/custom.go's static validator-list pattern.
package validators

import (
	"bytes"
	"errors"
	"sync"

	"github.com/google/btree"

	"github.com/qudag/qudag/ids"
)

// ErrInsufficientValidators describes a set with fewer than k distinct
// validators, matching issuer.go's "dropped query ... insufficient number of
// validators" handling. No function in this package returns it; the engine
// detects that case through sampler.ErrNotEnoughItems.
var ErrInsufficientValidators = errors.New("validators: insufficient validators to sample k distinct peers")

func less(a, b ids.NodeID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// Set is a snapshot of the current validator set, safe for concurrent use.
// Membership is kept in a btree.BTreeG ordered by node id so Snapshot walks
// validators in a canonical, deterministic order rather than insertion
// order, which keeps round-to-round peer sampling reproducible in tests.
type Set struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[ids.NodeID]
}

// NewSet returns an empty validator set.
func NewSet() *Set {
	return &Set{tree: btree.NewG(32, less)}
}

// Add registers a validator. Idempotent.
func (s *Set) Add(id ids.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(id)
}

// Remove deregisters a validator.
func (s *Set) Remove(id ids.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(id)
}

// Len returns the number of registered validators.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Has reports whether id is currently registered.
func (s *Set) Has(id ids.NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tree.Get(id)
	return ok
}

// Snapshot returns a stable, independently-sampleable copy of the current
// validator list in ascending node-id order, refreshed by the caller at
// most once per consensus round per §4.11.
func (s *Set) Snapshot() []ids.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ids.NodeID, 0, s.tree.Len())
	s.tree.Ascend(func(id ids.NodeID) bool {
		out = append(out, id)
		return true
	})
	return out
}
