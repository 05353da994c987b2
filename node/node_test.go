package node

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/sign"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/config"
	"github.com/qudag/qudag/gossip"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/mutation"
	"github.com/qudag/qudag/vertex"
)

type alwaysPrefer struct{}

func (alwaysPrefer) RespondToQuery(ids.VertexID) bool { return true }

func generateKeypair(t *testing.T) (pub, sec []byte) {
	t.Helper()
	pk, sk, err := sign.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pk[:], sk[:]
}

func newTestNode(t *testing.T) (*Node, []byte) {
	t.Helper()
	authPub, authSec := generateKeypair(t)

	cfg := config.Default()
	cfg.Consensus.K = 4
	cfg.Consensus.Alpha = 3
	cfg.Consensus.Beta = 2
	cfg.Consensus.QueryTimeout = time.Second
	cfg.Consensus.MaxParents = 4
	cfg.AuthorityPubKey = authPub
	cfg.Mempool.RateLimitPerSecond = 0

	net := gossip.NewInMemoryNetwork()
	self := ids.NodeID{0x00}
	net.RegisterPeer(self, alwaysPrefer{})

	n, err := New(self, cfg, prometheus.NewRegistry(), net, nil)
	require.NoError(t, err)

	// Every validator answers from this node's own engine, as an honest peer
	// sharing its view would: prefer only the preferred member of a conflict
	// set.
	for i := 0; i < cfg.Consensus.K; i++ {
		peer := ids.NodeID{byte(i + 1)}
		net.RegisterPeer(peer, n.Engine)
		n.Validators.Add(peer)
	}

	return n, authSec
}

// mintPayload mirrors the bytes ledger.mintPayload signs over: To then
// Amount, nothing else.
func mintPayload(to ids.AccountID, amt amount.Uint128) []byte {
	buf := make([]byte, 0, 32+16)
	buf = append(buf, to[:]...)
	buf = append(buf, amt.Bytes()...)
	return buf
}

func mintTo(t *testing.T, n *Node, authSec []byte, account ids.AccountID, amt uint64) {
	t.Helper()
	payload := mintPayload(account, amount.U128FromUint64(amt))
	sig, err := n.Signer.Sign(authSec, payload)
	require.NoError(t, err)

	err = n.Ledger.Apply(ids.ID{0xf0, byte(amt)}, &mutation.Mutation{Tag: mutation.TagMint, Mint: &mutation.Mint{
		To: account, Amount: amount.U128FromUint64(amt), AuthoritySig: sig,
	}}, time.Unix(0, 0))
	require.NoError(t, err)
}

func transferVertex(id byte, from, to ids.AccountID, amt, fee uint64, nonce uint64) *vertex.Vertex {
	return &vertex.Vertex{
		ID:      ids.ID{id},
		Parents: []ids.VertexID{vertex.GenesisID},
		Payload: &mutation.Mutation{Tag: mutation.TagTransfer, Transfer: &mutation.Transfer{
			From: from, To: to, Amount: amount.U128FromUint64(amt), FeeCommit: amount.U128FromUint64(fee), Nonce: nonce,
		}},
		CreationTime: time.Unix(100, 0),
		Height:       1,
	}
}

func TestAdmitToConsensusAndRunRoundAppliesFeeBurningTransfer(t *testing.T) {
	n, authSec := newTestNode(t)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	mintTo(t, n, authSec, alice, 10_000)

	v := transferVertex(0x01, alice, bob, 1000, 1, 0)
	require.NoError(t, n.AdmitToConsensus(v))

	ctx := context.Background()
	for i := 0; i < int(n.Engine.NumUndecided())+2; i++ {
		require.NoError(t, n.RunRoundAndApply(ctx, time.Unix(200, 0)))
	}

	aliceState, _ := n.Ledger.Account(alice)
	bobState, _ := n.Ledger.Account(bob)
	require.Equal(t, "8999", aliceState.Balance.String())
	require.Equal(t, "1000", bobState.Balance.String())
}

func TestSubmitTransferAdmitsToMempoolAndReturnsID(t *testing.T) {
	n, authSec := newTestNode(t)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	mintTo(t, n, authSec, alice, 10_000)

	pubKey, secKey := generateKeypair(t)
	vtxID, err := n.SubmitTransfer(secKey, pubKey, &mutation.Transfer{
		From: alice, To: bob, Amount: amount.U128FromUint64(1000), Nonce: 0, FeeCommit: amount.U128FromUint64(1),
	}, time.Unix(100, 0))
	require.NoError(t, err)
	require.NotEqual(t, ids.ID{}, vtxID)
	require.Equal(t, 1, n.Mempool.Len(n.ID))
}

func TestSubmitTransferRejectsWhenMempoolUnaffordable(t *testing.T) {
	n, authSec := newTestNode(t)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	mintTo(t, n, authSec, alice, 10)

	pubKey, secKey := generateKeypair(t)
	_, err := n.SubmitTransfer(secKey, pubKey, &mutation.Transfer{
		From: alice, To: bob, Amount: amount.U128FromUint64(1000), Nonce: 0, FeeCommit: amount.U128FromUint64(1),
	}, time.Unix(100, 0))
	require.Error(t, err)
}

func TestDoubleSpendSiblingIsRejectedAfterWinnerAccepts(t *testing.T) {
	n, authSec := newTestNode(t)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	carol := ids.AccountID{0x03}
	mintTo(t, n, authSec, alice, 10_000)

	winner := transferVertex(0x01, alice, bob, 1000, 1, 0)
	loser := transferVertex(0x02, alice, carol, 1000, 1, 0)
	require.NoError(t, n.AdmitToConsensus(winner))
	require.NoError(t, n.AdmitToConsensus(loser))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, n.RunRoundAndApply(ctx, time.Unix(200, 0)))
	}

	winnerVtx, ok := n.Store.Get(winner.ID)
	require.True(t, ok)
	loserVtx, ok := n.Store.Get(loser.ID)
	require.True(t, ok)
	require.NotEqual(t, winnerVtx.Confidence.Decision, loserVtx.Confidence.Decision)

	bobState, _ := n.Ledger.Account(bob)
	carolState, _ := n.Ledger.Account(carol)
	require.True(t, bobState.Balance.String() == "1000" || carolState.Balance.String() == "1000")
	require.False(t, bobState.Balance.String() == "1000" && carolState.Balance.String() == "1000")
}
