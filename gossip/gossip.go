// Package gossip defines the abstract broadcast/query network contract the
// consensus engine consumes (§4.11, §6 wire protocol). The concrete P2P
// transport is an external collaborator per §1; this package only
// fixes the interface and a round_nonce-correlated response shape, plus an
// in-memory fake used by consensus engine and node tests.
package gossip

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/qudag/qudag/ids"
)

// ErrTimeout is returned by Query when query_timeout elapses before a
// response arrives (§4.4: "a response is counted only if it arrives before
// query_timeout").
var ErrTimeout = errors.New("gossip: query timed out")

// QueryResponse answers "do you prefer v over its conflict siblings?" for
// one (vertex, round) pair. RoundNonce echoes the request so the asker can
// match responses to in-flight rounds (§6).
type QueryResponse struct {
	VertexID   ids.VertexID
	RoundNonce uuid.UUID
	Prefer     bool
}

// Broadcaster disseminates a vertex to the network best-effort (§4.11).
type Broadcaster interface {
	Broadcast(ctx context.Context, vertexBytes []byte) error
}

// Querier asks one peer for its preference on one vertex, bounded by the
// context's deadline (§4.11, §5 "every network-bound call has a timeout").
type Querier interface {
	Query(ctx context.Context, peer ids.NodeID, vertexID ids.VertexID, roundNonce uuid.UUID) (QueryResponse, error)
}

// VertexFetcher retrieves a missing parent by id from a peer (§6
// GetVertex/Vertex).
type VertexFetcher interface {
	GetVertex(ctx context.Context, peer ids.NodeID, vertexID ids.VertexID) ([]byte, error)
}

// Network is the full contract the consensus engine and mempool are written
// against.
type Network interface {
	Broadcaster
	Querier
	VertexFetcher
}

// Responder is implemented by the local node to answer incoming queries
// from peers (§4.4 "Query response rule").
type Responder interface {
	RespondToQuery(vertexID ids.VertexID) (prefer bool)
}

// InMemoryNetwork is a fake Network connecting multiple in-process Responders
// by peer id, used by in-process N-node test harnesses per §9's requirement
// that the consensus engine be instantiable multiple times in a single
// process for testing.
type InMemoryNetwork struct {
	mu        sync.RWMutex
	peers     map[ids.NodeID]Responder
	vertices  map[ids.NodeID]map[ids.VertexID][]byte
	broadcast []byte
}

var _ Network = (*InMemoryNetwork)(nil)

// NewInMemoryNetwork returns an empty fake network.
func NewInMemoryNetwork() *InMemoryNetwork {
	return &InMemoryNetwork{
		peers:    make(map[ids.NodeID]Responder),
		vertices: make(map[ids.NodeID]map[ids.VertexID][]byte),
	}
}

// RegisterPeer attaches a node's Responder and vertex bytes map under id.
func (n *InMemoryNetwork) RegisterPeer(id ids.NodeID, r Responder) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[id] = r
	n.vertices[id] = make(map[ids.VertexID][]byte)
}

// Broadcast records vertexBytes as the most recent broadcast, replacing any
// earlier one; it does not deliver the bytes anywhere and does not make
// them available through GetVertex (PublishVertex does that). Delivery is
// driven by test code calling Insert on each simulated peer's store
// directly.
func (n *InMemoryNetwork) Broadcast(_ context.Context, vertexBytes []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcast = vertexBytes
	return nil
}

// Query implements Querier by calling the target peer's Responder in
// process.
func (n *InMemoryNetwork) Query(ctx context.Context, peer ids.NodeID, vertexID ids.VertexID, roundNonce uuid.UUID) (QueryResponse, error) {
	n.mu.RLock()
	r, ok := n.peers[peer]
	n.mu.RUnlock()
	if !ok {
		return QueryResponse{}, ErrTimeout
	}
	select {
	case <-ctx.Done():
		return QueryResponse{}, ErrTimeout
	default:
	}
	return QueryResponse{VertexID: vertexID, RoundNonce: roundNonce, Prefer: r.RespondToQuery(vertexID)}, nil
}

// GetVertex implements VertexFetcher by looking up previously-published
// bytes for the given peer.
func (n *InMemoryNetwork) GetVertex(_ context.Context, peer ids.NodeID, vertexID ids.VertexID) ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	store, ok := n.vertices[peer]
	if !ok {
		return nil, ErrTimeout
	}
	b, ok := store[vertexID]
	if !ok {
		return nil, ErrTimeout
	}
	return b, nil
}

// PublishVertex makes vertexBytes available from peer via GetVertex, used by
// tests to simulate a peer that has already accepted/seen a vertex.
func (n *InMemoryNetwork) PublishVertex(peer ids.NodeID, vertexID ids.VertexID, vertexBytes []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.vertices[peer]; !ok {
		n.vertices[peer] = make(map[ids.VertexID][]byte)
	}
	n.vertices[peer][vertexID] = vertexBytes
}
