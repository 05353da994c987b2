package vertex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qudag/qudag/choices"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/mutation"
)

func newTestVertex(id ids.VertexID, parents []ids.VertexID, height uint64) *Vertex {
	return &Vertex{
		ID:           id,
		Parents:      parents,
		Payload:      &mutation.Mutation{Tag: mutation.TagBurn, Burn: &mutation.Burn{}},
		CreationTime: time.Unix(0, 0),
		Height:       height,
		Confidence:   NewConfidence(true),
	}
}

func TestInsertGenesisChild(t *testing.T) {
	s := NewMemStore()
	v := newTestVertex(ids.ID{0x01}, []ids.VertexID{GenesisID}, 1)
	require.NoError(t, s.Insert(v))

	got, ok := s.Get(v.ID)
	require.True(t, ok)
	require.Equal(t, v, got)
	require.True(t, s.Tips().Contains(v.ID))
}

func TestInsertMissingParent(t *testing.T) {
	s := NewMemStore()
	v := newTestVertex(ids.ID{0x02}, []ids.VertexID{{0x99}}, 1)
	err := s.Insert(v)
	var mpe *MissingParentError
	require.ErrorAs(t, err, &mpe)
	require.Equal(t, ids.ID{0x99}, mpe.Parent)
}

func TestInsertDuplicateErrors(t *testing.T) {
	s := NewMemStore()
	v := newTestVertex(ids.ID{0x01}, []ids.VertexID{GenesisID}, 1)
	require.NoError(t, s.Insert(v))
	err := s.Insert(v)
	require.ErrorIs(t, err, ErrAlreadyPresent)
}

func TestInsertRemovesParentFromTips(t *testing.T) {
	s := NewMemStore()
	a := newTestVertex(ids.ID{0x01}, []ids.VertexID{GenesisID}, 1)
	require.NoError(t, s.Insert(a))
	b := newTestVertex(ids.ID{0x02}, []ids.VertexID{a.ID}, 2)
	require.NoError(t, s.Insert(b))

	tips := s.Tips()
	require.False(t, tips.Contains(a.ID))
	require.True(t, tips.Contains(b.ID))
}

func TestMarkDecisionOnlyOnceFromUndecided(t *testing.T) {
	s := NewMemStore()
	v := newTestVertex(ids.ID{0x01}, []ids.VertexID{GenesisID}, 1)
	require.NoError(t, s.Insert(v))

	require.NoError(t, s.MarkDecision(v.ID, choices.Accepted))
	err := s.MarkDecision(v.ID, choices.Rejected)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestMarkDecisionUnknownVertex(t *testing.T) {
	s := NewMemStore()
	err := s.MarkDecision(ids.ID{0x09}, choices.Accepted)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAncestorsWalksBFS(t *testing.T) {
	s := NewMemStore()
	a := newTestVertex(ids.ID{0x01}, []ids.VertexID{GenesisID}, 1)
	require.NoError(t, s.Insert(a))
	b := newTestVertex(ids.ID{0x02}, []ids.VertexID{a.ID}, 2)
	require.NoError(t, s.Insert(b))
	c := newTestVertex(ids.ID{0x03}, []ids.VertexID{b.ID}, 3)
	require.NoError(t, s.Insert(c))

	it := s.Ancestors(c.ID, 0)
	var seen []ids.VertexID
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, v.ID)
	}
	require.Equal(t, []ids.VertexID{c.ID, b.ID, a.ID}, seen)
}

func TestValidateRejectsNoParents(t *testing.T) {
	v := &Vertex{ID: ids.ID{0x01}}
	require.ErrorIs(t, v.Validate(), ErrNoParents)
}

func TestValidateRejectsSelfParent(t *testing.T) {
	id := ids.ID{0x01}
	v := &Vertex{ID: id, Parents: []ids.VertexID{id}}
	require.ErrorIs(t, v.Validate(), ErrSelfParent)
}

func TestValidateRejectsDuplicateParent(t *testing.T) {
	p := ids.ID{0x02}
	v := &Vertex{ID: ids.ID{0x01}, Parents: []ids.VertexID{p, p}}
	require.ErrorIs(t, v.Validate(), ErrDuplicateParent)
}
