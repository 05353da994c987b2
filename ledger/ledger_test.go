package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/fees"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/immutability"
	"github.com/qudag/qudag/mutation"
	"github.com/qudag/qudag/primitives"
	"github.com/qudag/qudag/registry"
)

func newTestLedger() *Ledger {
	controller := immutability.New(false, nil)
	authSig := func(sig, payload []byte) bool { return true }
	return New(fees.DefaultParams(), controller, registry.AcceptAllVerifier{}, authSig, primitives.NaClSigner{}, primitives.Blake2bHasher{}, nil)
}

func mintTo(t *testing.T, l *Ledger, account ids.AccountID, amt uint64) {
	t.Helper()
	err := l.Apply(ids.ID{0xa0}, &mutation.Mutation{Tag: mutation.TagMint, Mint: &mutation.Mint{
		To: account, Amount: amount.U128FromUint64(amt), AuthoritySig: []byte("sig"),
	}}, time.Unix(0, 0))
	require.NoError(t, err)
}

func TestApplyTransferSucceedsAndBurnsFee(t *testing.T) {
	l := newTestLedger()
	alice := ids.AccountID{0x01}
	bob := ids.AccountID{0x02}
	mintTo(t, l, alice, 10_000)

	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.TagTransfer, Transfer: &mutation.Transfer{
		From: alice, To: bob, Amount: amount.U128FromUint64(1000), Nonce: 0, FeeCommit: amount.U128FromUint64(1),
	}}, time.Unix(0, 0))
	require.NoError(t, err)

	aliceState, _ := l.Account(alice)
	bobState, _ := l.Account(bob)
	require.Equal(t, "8999", aliceState.Balance.String())
	require.Equal(t, "1000", bobState.Balance.String())
	require.Equal(t, uint64(1), aliceState.NextNonce)
}

func TestApplyTransferRejectsBadNonce(t *testing.T) {
	l := newTestLedger()
	alice := ids.AccountID{0x01}
	mintTo(t, l, alice, 10_000)

	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.TagTransfer, Transfer: &mutation.Transfer{
		From: alice, To: ids.AccountID{0x02}, Amount: amount.U128FromUint64(1000), Nonce: 5, FeeCommit: amount.U128FromUint64(1),
	}}, time.Unix(0, 0))
	require.ErrorIs(t, err, ErrBadNonce)

	journal := l.Journal()
	require.Len(t, journal, 2) // mint + failed transfer
	require.False(t, journal[1].Ok)
}

func TestApplyTransferRejectsFeeMismatch(t *testing.T) {
	l := newTestLedger()
	alice := ids.AccountID{0x01}
	mintTo(t, l, alice, 10_000)

	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.TagTransfer, Transfer: &mutation.Transfer{
		From: alice, To: ids.AccountID{0x02}, Amount: amount.U128FromUint64(1000), Nonce: 0, FeeCommit: amount.U128FromUint64(999),
	}}, time.Unix(0, 0))
	require.ErrorIs(t, err, ErrFeeMismatch)
}

func TestApplyTransferRejectsInsufficientFunds(t *testing.T) {
	l := newTestLedger()
	alice := ids.AccountID{0x01}
	mintTo(t, l, alice, 10)

	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.TagTransfer, Transfer: &mutation.Transfer{
		From: alice, To: ids.AccountID{0x02}, Amount: amount.U128FromUint64(1000), Nonce: 0, FeeCommit: amount.U128FromUint64(1),
	}}, time.Unix(0, 0))
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestApplyMintRejectsBadAuthoritySig(t *testing.T) {
	controller := immutability.New(false, nil)
	authSig := func(sig, payload []byte) bool { return false }
	l := New(fees.DefaultParams(), controller, registry.AcceptAllVerifier{}, authSig, primitives.NaClSigner{}, primitives.Blake2bHasher{}, nil)

	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.TagMint, Mint: &mutation.Mint{
		To: ids.AccountID{0x01}, Amount: amount.U128FromUint64(100), AuthoritySig: []byte("bad"),
	}}, time.Unix(0, 0))
	require.ErrorIs(t, err, ErrBadAuthoritySig)
}

func TestApplyBurnDebitsBalance(t *testing.T) {
	l := newTestLedger()
	alice := ids.AccountID{0x01}
	mintTo(t, l, alice, 1000)

	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.TagBurn, Burn: &mutation.Burn{
		From: alice, Amount: amount.U128FromUint64(400), Nonce: 0,
	}}, time.Unix(0, 0))
	require.NoError(t, err)

	state, _ := l.Account(alice)
	require.Equal(t, "600", state.Balance.String())
}

func TestApplyVerifyAgentMarksVerified(t *testing.T) {
	l := newTestLedger()
	account := ids.AccountID{0x01}
	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.TagVerifyAgent, VerifyAgent: &mutation.VerifyAgent{
		Account: account, ProofDigest: ids.ID{0x09},
	}}, time.Unix(0, 0))
	require.NoError(t, err)

	state, ok := l.Account(account)
	require.True(t, ok)
	require.True(t, state.Verified)
}

func TestApplyDeployImmutableThenConfigureFeesBlocked(t *testing.T) {
	l := newTestLedger()
	now := time.Unix(1000, 0)

	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.TagDeployImmutable, DeployImmutable: &mutation.DeployImmutable{
		GraceSeconds: 10,
	}}, now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	params := fees.DefaultParams()
	params.FMinNum = 999
	err = l.Apply(ids.ID{0x02}, &mutation.Mutation{Tag: mutation.TagConfigureFees, ConfigureFees: &mutation.ConfigureFees{
		Params: params.Encode(),
	}}, later)
	require.ErrorIs(t, err, ErrImmutableLocked)
}

func TestApplyUnknownTagErrors(t *testing.T) {
	l := newTestLedger()
	err := l.Apply(ids.ID{0x01}, &mutation.Mutation{Tag: mutation.Tag(200)}, time.Unix(0, 0))
	require.ErrorIs(t, err, mutation.ErrUnknownTag)
}

func TestJournalRecordsEveryApplication(t *testing.T) {
	l := newTestLedger()
	alice := ids.AccountID{0x01}
	mintTo(t, l, alice, 1000)
	require.Len(t, l.Journal(), 1)
}
