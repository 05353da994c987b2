package vertex

import (
	"errors"
	"sort"
	"sync"

	"github.com/qudag/qudag/choices"
	"github.com/qudag/qudag/ids"
)

var (
	ErrAlreadyPresent    = errors.New("vertex: already present")
	ErrMissingParent     = errors.New("vertex: missing parent")
	ErrIllegalTransition = errors.New("vertex: illegal decision transition")
	ErrNotFound          = errors.New("vertex: not found")
)

// MissingParentError carries the specific parent id that was absent, per
// §4.2's `MissingParent(VertexId)` variant.
type MissingParentError struct {
	Parent ids.VertexID
}

func (e *MissingParentError) Error() string {
	return "vertex: missing parent " + e.Parent.String()
}

func (e *MissingParentError) Unwrap() error { return ErrMissingParent }

// Store is the DAG store contract: many-readers/single-writer over a
// collection of vertices keyed by VertexId.
type Store interface {
	// Insert adds vtx. Idempotent: re-inserting an already-present id is a
	// no-op returning ErrAlreadyPresent. Fails with *MissingParentError if
	// any parent (other than GenesisID) is absent.
	Insert(vtx *Vertex) error
	// Get returns the vertex for id, or (nil, false) if absent.
	Get(id ids.VertexID) (*Vertex, bool)
	// Tips returns the vertices with no children in the store.
	Tips() ids.Set[ids.VertexID]
	// Ancestors lazily walks id's ancestry bottom-up, stopping after
	// depthLimit levels (0 means unbounded).
	Ancestors(id ids.VertexID, depthLimit int) Iterator
	// MarkDecision transitions id's decision from Undecided to status.
	// Fails with ErrIllegalTransition for any other starting state: Accepted
	// and Rejected are terminal.
	MarkDecision(id ids.VertexID, status choices.Status) error
}

// Iterator lazily yields ancestor vertices.
type Iterator interface {
	Next() (*Vertex, bool)
}

type memStore struct {
	mu       sync.RWMutex
	vertices map[ids.VertexID]*Vertex
	children map[ids.VertexID]ids.Set[ids.VertexID]
	tips     ids.Set[ids.VertexID]
}

var _ Store = (*memStore)(nil)

// NewMemStore returns an in-memory Store with the genesis sentinel already
// considered present, so a vertex's parents may reference it without it
// being an actual stored vertex.
func NewMemStore() Store {
	return &memStore{
		vertices: make(map[ids.VertexID]*Vertex),
		children: make(map[ids.VertexID]ids.Set[ids.VertexID]),
		tips:     ids.NewSet[ids.VertexID](16),
	}
}

func (s *memStore) Insert(vtx *Vertex) error {
	if err := vtx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vertices[vtx.ID]; exists {
		return ErrAlreadyPresent
	}

	for _, p := range vtx.Parents {
		if p == GenesisID {
			continue
		}
		parent, ok := s.vertices[p]
		if !ok {
			return &MissingParentError{Parent: p}
		}
		if parent.Height >= vtx.Height {
			return ErrBadHeight
		}
	}

	s.vertices[vtx.ID] = vtx
	s.tips.Add(vtx.ID)
	for _, p := range vtx.Parents {
		if p == GenesisID {
			continue
		}
		s.tips.Remove(p)
		kids, ok := s.children[p]
		if !ok {
			kids = ids.NewSet[ids.VertexID](4)
			s.children[p] = kids
		}
		kids.Add(vtx.ID)
	}
	return nil
}

func (s *memStore) Get(id ids.VertexID) (*Vertex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vertices[id]
	return v, ok
}

func (s *memStore) Tips() ids.Set[ids.VertexID] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := ids.NewSet[ids.VertexID](s.tips.Len())
	out.Union(s.tips)
	return out
}

func (s *memStore) MarkDecision(id ids.VertexID, status choices.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vertices[id]
	if !ok {
		return ErrNotFound
	}
	if v.Confidence.Decision != choices.Undecided {
		return ErrIllegalTransition
	}
	if !status.Decided() {
		return ErrIllegalTransition
	}
	v.Confidence.Decision = status
	return nil
}

func (s *memStore) Ancestors(id ids.VertexID, depthLimit int) Iterator {
	return &bfsIterator{
		store:      s,
		frontier:   []frontierEntry{{id: id, depth: 0}},
		depthLimit: depthLimit,
	}
}

type frontierEntry struct {
	id    ids.VertexID
	depth int
}

type bfsIterator struct {
	store      *memStore
	frontier   []frontierEntry
	visited    ids.Set[ids.VertexID]
	depthLimit int
}

func (it *bfsIterator) Next() (*Vertex, bool) {
	for {
		if len(it.frontier) == 0 {
			return nil, false
		}
		if it.visited == nil {
			it.visited = ids.NewSet[ids.VertexID](8)
		}
		next := it.frontier[0]
		it.frontier = it.frontier[1:]
		if it.visited.Contains(next.id) {
			continue
		}
		it.visited.Add(next.id)

		v, ok := it.store.Get(next.id)
		if !ok {
			continue
		}
		if it.depthLimit == 0 || next.depth < it.depthLimit {
			parents := append([]ids.VertexID(nil), v.Parents...)
			sort.Slice(parents, func(i, j int) bool { return parents[i].Less(parents[j]) })
			for _, p := range parents {
				if p == GenesisID {
					continue
				}
				it.frontier = append(it.frontier, frontierEntry{id: p, depth: next.depth + 1})
			}
		}
		return v, true
	}
}
