package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/mutation"
	"github.com/qudag/qudag/vertex"
)

type fixedNonceSource struct{ next uint64 }

func (f fixedNonceSource) NextNonce(ids.AccountID) uint64 { return f.next }

type fixedBalanceSource struct{ balance amount.Uint128 }

func (f fixedBalanceSource) ConfirmedBalance(ids.AccountID) amount.Uint128 { return f.balance }

func transferVertex(id byte, from, to ids.AccountID, amt, fee uint64, nonce uint64) *vertex.Vertex {
	return &vertex.Vertex{
		ID: ids.ID{id},
		Payload: &mutation.Mutation{Tag: mutation.TagTransfer, Transfer: &mutation.Transfer{
			From: from, To: to, Amount: amount.U128FromUint64(amt), FeeCommit: amount.U128FromUint64(fee), Nonce: nonce,
		}},
	}
}

func TestAdmitAcceptsWellFormedTransfer(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(10_000)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	peer := ids.NodeID{0x09}

	err := m.Admit(peer, transferVertex(0x01, alice, bob, 1000, 5, 0), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, m.Len(peer))
}

func TestAdmitRejectsNonceOutsideWindow(t *testing.T) {
	m := New(fixedNonceSource{next: 10}, fixedBalanceSource{balance: amount.U128FromUint64(10_000)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}

	err := m.Admit(ids.NodeID{0x09}, transferVertex(0x01, alice, bob, 1000, 5, 5), nil, nil)
	require.ErrorIs(t, err, ErrNonceOutOfWindow)

	err = m.Admit(ids.NodeID{0x09}, transferVertex(0x02, alice, bob, 1000, 5, 10+NonceWindow), nil, nil)
	require.ErrorIs(t, err, ErrNonceOutOfWindow)
}

func TestAdmitRejectsFeeAboveAmount(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(10_000)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}

	err := m.Admit(ids.NodeID{0x09}, transferVertex(0x01, alice, bob, 100, 101, 0), nil, nil)
	require.ErrorIs(t, err, ErrFeeOutOfBounds)
}

func TestAdmitRejectsUnaffordable(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(100)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}

	err := m.Admit(ids.NodeID{0x09}, transferVertex(0x01, alice, bob, 100, 5, 0), nil, nil)
	require.ErrorIs(t, err, ErrUnaffordable)
}

func TestAdmitSpeculativeBalanceAccountsForPendingDebits(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(1000)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}

	require.NoError(t, m.Admit(ids.NodeID{0x09}, transferVertex(0x01, alice, bob, 600, 0, 0), nil, nil))
	// Second transfer from the same sender must see the first already debited.
	err := m.Admit(ids.NodeID{0x09}, transferVertex(0x02, alice, bob, 500, 0, 1), nil, nil)
	require.ErrorIs(t, err, ErrUnaffordable)
}

func TestAdmitRejectsDuplicateVertexID(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(10_000)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	v := transferVertex(0x01, alice, bob, 100, 1, 0)

	require.NoError(t, m.Admit(ids.NodeID{0x09}, v, nil, nil))
	err := m.Admit(ids.NodeID{0x09}, v, nil, nil)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestAdmitReplaceByFeeRequiresStrictlyHigherFee(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(10_000)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	peer := ids.NodeID{0x09}

	require.NoError(t, m.Admit(peer, transferVertex(0x01, alice, bob, 100, 1, 0), nil, nil))

	err := m.Admit(peer, transferVertex(0x02, alice, bob, 100, 1, 0), nil, nil)
	require.ErrorIs(t, err, ErrDuplicate)
	require.Equal(t, 1, m.Len(peer))

	require.NoError(t, m.Admit(peer, transferVertex(0x03, alice, bob, 100, 2, 0), nil, nil))
	require.Equal(t, 1, m.Len(peer))
}

func TestAdmitRejectsReplaceAfterVotingStarted(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(10_000)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	peer := ids.NodeID{0x09}

	v := transferVertex(0x01, alice, bob, 100, 1, 0)
	require.NoError(t, m.Admit(peer, v, nil, nil))
	m.MarkVotingStarted(v.ID)

	err := m.Admit(peer, transferVertex(0x02, alice, bob, 100, 2, 0), nil, nil)
	require.ErrorIs(t, err, ErrVotingStarted)
}

func TestAdmitEvictsLowestFeeWhenQueueFull(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(1_000_000)}, nil, 2, 0, 0)
	peer := ids.NodeID{0x09}
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}

	require.NoError(t, m.Admit(peer, transferVertex(0x01, alice, bob, 10, 1, 0), nil, nil))
	require.NoError(t, m.Admit(peer, transferVertex(0x02, alice, bob, 10, 2, 1), nil, nil))
	require.Equal(t, 2, m.Len(peer))

	// Fee below the lowest pending (1) is rejected outright.
	err := m.Admit(peer, transferVertex(0x03, alice, bob, 10, 0, 2), nil, nil)
	require.ErrorIs(t, err, ErrQueueFull)

	// Fee above the lowest pending (1) evicts it and admits.
	require.NoError(t, m.Admit(peer, transferVertex(0x04, alice, bob, 10, 3, 2), nil, nil))
	require.Equal(t, 2, m.Len(peer))
}

func TestAdmitRateLimitsPerPeer(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(1_000_000)}, nil, 0, 1, 1)
	peer := ids.NodeID{0x09}
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}

	require.NoError(t, m.Admit(peer, transferVertex(0x01, alice, bob, 10, 1, 0), nil, nil))
	err := m.Admit(peer, transferVertex(0x02, alice, bob, 10, 1, 1), nil, nil)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestRemoveDropsEntry(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(1_000_000)}, nil, 0, 0, 0)
	peer := ids.NodeID{0x09}
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	v := transferVertex(0x01, alice, bob, 10, 1, 0)

	require.NoError(t, m.Admit(peer, v, nil, nil))
	m.Remove(v.ID)
	require.Equal(t, 0, m.Len(peer))

	// Remove clears the entry's duplicate and conflict-key indexes, so a
	// resubmission for the same nonce is admitted again; the removed debit
	// still counts against the speculative balance, which 1_000_000 covers.
	require.NoError(t, m.Admit(peer, transferVertex(0x02, alice, bob, 10, 1, 0), nil, nil))
}

func TestAdmitAllowsBurnWithoutFeeField(t *testing.T) {
	m := New(fixedNonceSource{next: 0}, fixedBalanceSource{balance: amount.U128FromUint64(1_000)}, nil, 0, 0, 0)
	alice := ids.AccountID{0x01}

	v := &vertex.Vertex{
		ID: ids.ID{0x01},
		Payload: &mutation.Mutation{Tag: mutation.TagBurn, Burn: &mutation.Burn{
			From: alice, Amount: amount.U128FromUint64(400), Nonce: 0,
		}},
	}
	require.NoError(t, m.Admit(ids.NodeID{0x09}, v, nil, nil))
}
