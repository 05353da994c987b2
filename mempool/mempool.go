// Package mempool implements pre-consensus admission control (§4.10): the
// checks a submitted vertex must pass before it is broadcast
// and enters voting, plus the bounded per-peer backpressure queues.
package mempool

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/mutation"
	"github.com/qudag/qudag/primitives"
	"github.com/qudag/qudag/vertex"
)

// NonceWindow bounds how far ahead of next_nonce a pending mutation's nonce
// may be, capping pending-per-account memory (§4.10: "e.g., 64").
const NonceWindow = 64

// DefaultPerPeerCapacity is the bounded-queue size per source peer (§4.10:
// "e.g., 1024 pending").
const DefaultPerPeerCapacity = 1024

var (
	ErrBadSignature      = errors.New("mempool: signature verification failed")
	ErrNonceOutOfWindow  = errors.New("mempool: nonce outside admission window")
	ErrFeeOutOfBounds    = errors.New("mempool: fee_commit out of [0, amount] bounds")
	ErrUnaffordable      = errors.New("mempool: speculative balance cannot cover amount+fee")
	ErrDuplicate         = errors.New("mempool: vertex already pending")
	ErrVotingStarted     = errors.New("mempool: cannot replace, vertex already entered consensus")
	ErrQueueFull         = errors.New("mempool: per-peer queue full and incoming fee is not higher than the lowest pending")
	ErrRateLimited       = errors.New("mempool: submission rate limit exceeded")
)

// NonceSource answers next_nonce lookups the admission check needs; the
// ledger implements this.
type NonceSource interface {
	NextNonce(account ids.AccountID) uint64
}

// BalanceSource answers confirmed-balance lookups; the ledger implements
// this. The mempool layers pending debits on top to get the speculative
// view §4.10 requires.
type BalanceSource interface {
	ConfirmedBalance(account ids.AccountID) amount.Uint128
}

// entry is one admitted, not-yet-broadcast pending vertex.
type entry struct {
	vtx          *vertex.Vertex
	conflictKey  mutation.ConflictKey
	fee          amount.Uint128
	receivedAt   time.Time
	votingBegun  bool
	index        int // heap index, maintained by container/heap
}

// peerQueue is a min-heap ordered by (fee ascending, receivedAt ascending)
// so the lowest-fee, oldest entry is evicted first on overflow (§4.10).
type peerQueue []*entry

func (q peerQueue) Len() int { return len(q) }
func (q peerQueue) Less(i, j int) bool {
	if c := q[i].fee.Cmp(q[j].fee); c != 0 {
		return c < 0
	}
	return q[i].receivedAt.Before(q[j].receivedAt)
}
func (q peerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *peerQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *peerQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Mempool admits vertices per §4.10 and exposes a bounded, fee-ordered
// per-peer pending set for the broadcast scheduler to drain.
type Mempool struct {
	mu sync.Mutex

	nonces    NonceSource
	balances  BalanceSource
	verifier  primitives.Verifier
	perPeer   map[ids.NodeID]*peerQueue
	byVertex  map[ids.VertexID]*entry
	byKey     map[string]*entry // conflictKey.String() -> currently-pending entry, for replace-by-fee
	pending   map[ids.AccountID]amount.Uint128
	capacity  int
	limiters  map[ids.NodeID]*rate.Limiter
	limit     rate.Limit
	burst     int
}

// New constructs a Mempool. limitPerSecond/burst configure a
// golang.org/x/time/rate.Limiter per source peer guarding submission rate;
// 0 disables rate limiting.
func New(nonces NonceSource, balances BalanceSource, verifier primitives.Verifier, capacity int, limitPerSecond float64, burst int) *Mempool {
	if capacity <= 0 {
		capacity = DefaultPerPeerCapacity
	}
	return &Mempool{
		nonces:   nonces,
		balances: balances,
		verifier: verifier,
		perPeer:  make(map[ids.NodeID]*peerQueue),
		byVertex: make(map[ids.VertexID]*entry),
		byKey:    make(map[string]*entry),
		pending:  make(map[ids.AccountID]amount.Uint128),
		capacity: capacity,
		limiters: make(map[ids.NodeID]*rate.Limiter),
		limit:    rate.Limit(limitPerSecond),
		burst:    burst,
	}
}

func (m *Mempool) limiterFor(peer ids.NodeID) *rate.Limiter {
	l, ok := m.limiters[peer]
	if !ok {
		l = rate.NewLimiter(m.limit, m.burst)
		m.limiters[peer] = l
	}
	return l
}

// speculativeBalance returns a sender's confirmed balance minus every debit
// ever admitted from that sender (§4.10's "speculative view"). Debits are
// not released when an entry is removed, replaced, or finalized.
func (m *Mempool) speculativeBalance(account ids.AccountID) amount.Uint128 {
	confirmed := m.balances.ConfirmedBalance(account)
	if debited, ok := m.pending[account]; ok {
		if v, err := confirmed.Sub(debited); err == nil {
			return v
		}
		return amount.ZeroU128()
	}
	return confirmed
}

// Admit runs the full §4.10 pre-consensus check set and, if it passes,
// enqueues vtx under sourcePeer's bounded queue.
func (m *Mempool) Admit(sourcePeer ids.NodeID, vtx *vertex.Vertex, encoded []byte, creatorPubKey []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limit > 0 {
		if !m.limiterFor(sourcePeer).Allow() {
			return ErrRateLimited
		}
	}

	if _, exists := m.byVertex[vtx.ID]; exists {
		return ErrDuplicate
	}

	if m.verifier != nil {
		ok, err := vertex.VerifySignature(m.verifier, vtx, creatorPubKey)
		if err != nil || !ok {
			return ErrBadSignature
		}
	}

	key, err := vtx.Payload.ConflictKey()
	if err != nil {
		return err
	}

	var account ids.AccountID
	var txAmount, feeCommit amount.Uint128
	hasAccountFields := false
	switch vtx.Payload.Tag {
	case mutation.TagTransfer:
		t := vtx.Payload.Transfer
		account, txAmount, feeCommit = t.From, t.Amount, t.FeeCommit
		hasAccountFields = true
		if err := m.checkNonceWindow(account, t.Nonce); err != nil {
			return err
		}
	case mutation.TagBurn:
		b := vtx.Payload.Burn
		account, txAmount, feeCommit = b.From, b.Amount, amount.ZeroU128()
		hasAccountFields = true
		if err := m.checkNonceWindow(account, b.Nonce); err != nil {
			return err
		}
	}

	if hasAccountFields {
		if feeCommit.Cmp(txAmount) > 0 {
			return ErrFeeOutOfBounds
		}
		debit, err := txAmount.Add(feeCommit)
		if err != nil {
			return err
		}
		if !m.speculativeBalance(account).GreaterOrEqual(debit) {
			return ErrUnaffordable
		}
	}

	// Replace-by-fee: a resubmission of the same conflict key with a higher
	// fee_commit replaces the pending copy, but only while it hasn't begun
	// voting (§4.10).
	if existing, ok := m.byKey[key.String()]; ok {
		if existing.votingBegun {
			return ErrVotingStarted
		}
		if feeCommit.Cmp(existing.fee) <= 0 {
			return ErrDuplicate
		}
		m.removeLocked(existing)
	}

	e := &entry{vtx: vtx, conflictKey: key, fee: feeCommit, receivedAt: time.Now()}
	q, ok := m.perPeer[sourcePeer]
	if !ok {
		nq := make(peerQueue, 0, m.capacity)
		q = &nq
		m.perPeer[sourcePeer] = q
		heap.Init(q)
	}
	if q.Len() >= m.capacity {
		lowest := (*q)[0]
		if e.fee.Cmp(lowest.fee) <= 0 {
			return ErrQueueFull
		}
		m.removeLocked(lowest)
	}

	heap.Push(q, e)
	m.byVertex[vtx.ID] = e
	m.byKey[key.String()] = e
	if hasAccountFields {
		if cur, ok := m.pending[account]; ok {
			if sum, err := cur.Add(txAmount); err == nil {
				if sum2, err2 := sum.Add(feeCommit); err2 == nil {
					m.pending[account] = sum2
				}
			}
		} else if sum, err := txAmount.Add(feeCommit); err == nil {
			m.pending[account] = sum
		}
	}
	return nil
}

func (m *Mempool) checkNonceWindow(account ids.AccountID, nonce uint64) error {
	next := m.nonces.NextNonce(account)
	if nonce < next || nonce >= next+NonceWindow {
		return ErrNonceOutOfWindow
	}
	return nil
}

// removeLocked drops e from its peer queue and indexes; caller holds m.mu.
func (m *Mempool) removeLocked(e *entry) {
	for _, q := range m.perPeer {
		if e.index >= 0 && e.index < q.Len() && (*q)[e.index] == e {
			heap.Remove(q, e.index)
			break
		}
	}
	delete(m.byVertex, e.vtx.ID)
	delete(m.byKey, e.conflictKey.String())
}

// MarkVotingStarted flags vtxID as having entered consensus, after which it
// can no longer be replaced-by-fee (§4.10: "once voting starts, both
// compete as a conflict set").
func (m *Mempool) MarkVotingStarted(vtxID ids.VertexID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byVertex[vtxID]; ok {
		e.votingBegun = true
	}
}

// Remove drops vtxID from the mempool (e.g. once it has been broadcast and
// handed to the consensus engine).
func (m *Mempool) Remove(vtxID ids.VertexID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byVertex[vtxID]; ok {
		m.removeLocked(e)
	}
}

// Len returns the number of pending vertices queued for sourcePeer.
func (m *Mempool) Len(sourcePeer ids.NodeID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.perPeer[sourcePeer]
	if !ok {
		return 0
	}
	return q.Len()
}
