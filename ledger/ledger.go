// Package ledger implements the transactional rUv ledger (§4.6): per-account
// balances and nonces, applied strictly on vertex
// acceptance in deterministic (height, VertexId) order.
package ledger

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/fees"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/immutability"
	"github.com/qudag/qudag/logging"
	"github.com/qudag/qudag/mutation"
	"github.com/qudag/qudag/primitives"
	"github.com/qudag/qudag/registry"
)

// FeeDestination fixes an open policy question from §9: this module burns
// fees outright rather than redistributing or splitting them. The choice is
// part of the canonical config and is folded into config_hash via
// configBytes.
const FeeDestination = "burn"

// configBytes is the canonical config encoding config_hash is computed
// over: the encoded fee parameters followed by FeeDestination.
func configBytes(p fees.Params) []byte {
	return append(p.Encode(), FeeDestination...)
}

var (
	ErrBadNonce          = errors.New("ledger: nonce does not match next_nonce")
	ErrFeeMismatch       = errors.New("ledger: computed fee does not match fee_commit")
	ErrInsufficientFunds = errors.New("ledger: insufficient balance")
	ErrBadAuthoritySig   = errors.New("ledger: invalid authority signature")
	ErrImmutableLocked   = errors.New("ledger: config mutation blocked by immutability controller")
	ErrUnknownAccount    = errors.New("ledger: unknown account")
)

// AccountState is the per-account record from §6's persisted layout.
type AccountState struct {
	Balance          amount.Uint128
	NextNonce        uint64
	Verified         bool
	MonthlyUsage     uint64
	UsageWindowStart time.Time
	TimeJoined       time.Time
}

// JournalEntry records the canonical outcome of applying one mutation,
// including failures: §4.6 "Rejection here does NOT unwind the vertex's
// acceptance; it marks the mutation 'applied-with-failure' in the ledger
// journal so observers see the canonical outcome."
type JournalEntry struct {
	VertexID ids.VertexID
	Tag      mutation.Tag
	Ok       bool
	Err      string
}

// AuthoritySigVerifier checks a Mint/ConfigureFees/DeployImmutable
// authority signature; the concrete signature scheme is an external
// collaborator (primitives.Verifier) the node wires in.
type AuthoritySigVerifier func(sig []byte, payload []byte) bool

// Ledger owns account state, fee params, and the immutability controller,
// applying mutations one at a time in the caller-supplied acceptance order
// (§5: "Per-account ledger application is strictly serialized by
// acceptance order").
type Ledger struct {
	mu sync.Mutex

	accounts map[ids.AccountID]*AccountState
	journal  []JournalEntry

	feeParams   fees.Params
	controller  *immutability.Controller
	verifier    registry.VerifierContract
	authSig     AuthoritySigVerifier
	sigVerifier primitives.Verifier
	hasher      primitives.Hasher

	log logging.Logger
}

// New constructs a Ledger. verifier may be registry.AcceptAllVerifier{} for
// tests that don't exercise VerifyAgent's predicate itself. sigVerifier
// checks a governance-override signature against the controller's
// genesis-declared governance key (§4.9); authSig checks Mint/
// DeployImmutable authority signatures, and ConfigureFees authority
// signatures while the immutability lock is not enforced, against a
// separately-resolved authority key.
func New(feeParams fees.Params, controller *immutability.Controller, verifier registry.VerifierContract, authSig AuthoritySigVerifier, sigVerifier primitives.Verifier, hasher primitives.Hasher, log logging.Logger) *Ledger {
	if log == nil {
		log = logging.NewNop()
	}
	return &Ledger{
		accounts:    make(map[ids.AccountID]*AccountState),
		feeParams:   feeParams,
		controller:  controller,
		verifier:    verifier,
		authSig:     authSig,
		sigVerifier: sigVerifier,
		hasher:      hasher,
		log:         log,
	}
}

// Account returns a copy of account's current state, or (zero, false) if
// unknown.
func (l *Ledger) Account(account ids.AccountID) (AccountState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[account]
	if !ok {
		return AccountState{}, false
	}
	return *a, true
}

// Journal returns the applied-mutation journal accumulated so far.
func (l *Ledger) Journal() []JournalEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]JournalEntry, len(l.journal))
	copy(out, l.journal)
	return out
}

// FeeParams returns the currently active fee parameters.
func (l *Ledger) FeeParams() fees.Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feeParams
}

// account returns id's record, creating it with TimeJoined set to now if
// this is the account's first touch (so §4.7's time-in-system term has a
// real genesis to measure from instead of a perpetually zero duration).
func (l *Ledger) account(id ids.AccountID, now time.Time) *AccountState {
	a, ok := l.accounts[id]
	if !ok {
		a = &AccountState{Balance: amount.ZeroU128(), TimeJoined: now}
		l.accounts[id] = a
	}
	return a
}

// Apply commits one mutation as the effect of vtxID's acceptance. now is
// the acceptance-time clock value used for fee and window computations. A
// validation failure here is recorded as "applied-with-failure" in the
// journal and returned, but never unwinds vtxID's own Accepted decision
// (§4.6); callers must not retry or roll back on error.
func (l *Ledger) Apply(vtxID ids.VertexID, m *mutation.Mutation, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	switch m.Tag {
	case mutation.TagTransfer:
		err = l.applyTransfer(m.Transfer, now)
	case mutation.TagMint:
		err = l.applyMint(m.Mint, now)
	case mutation.TagBurn:
		err = l.applyBurn(m.Burn, now)
	case mutation.TagVerifyAgent:
		err = l.applyVerifyAgent(m.VerifyAgent, now)
	case mutation.TagUpdateUsage:
		err = l.applyUpdateUsage(m.UpdateUsage, now)
	case mutation.TagConfigureFees:
		err = l.applyConfigureFees(m.ConfigureFees, now)
	case mutation.TagDeployImmutable:
		err = l.applyDeployImmutable(m.DeployImmutable, now)
	default:
		err = mutation.ErrUnknownTag
	}

	entry := JournalEntry{VertexID: vtxID, Tag: m.Tag, Ok: err == nil}
	if err != nil {
		entry.Err = err.Error()
		l.log.Warn("mutation applied with failure",
			zap.Stringer("vertex", vtxID), zap.Stringer("tag", m.Tag), zap.Error(err))
	}
	l.journal = append(l.journal, entry)
	return err
}

func (l *Ledger) rollWindow(a *AccountState, now time.Time) {
	if a.UsageWindowStart.IsZero() {
		a.UsageWindowStart = now
		return
	}
	if registry.WindowDue(a.UsageWindowStart, now) {
		a.MonthlyUsage, a.UsageWindowStart = registry.Roll(now)
	}
}

func (l *Ledger) applyTransfer(t *mutation.Transfer, now time.Time) error {
	from := l.account(t.From, now)
	if t.Nonce != from.NextNonce {
		return ErrBadNonce
	}

	l.rollWindow(from, now)
	timeInSystem := int64(now.Sub(from.TimeJoined).Seconds())
	if timeInSystem < 0 {
		timeInSystem = 0
	}

	fee, err := amount.FromBigInt(fees.Compute(l.feeParams, from.Verified, from.MonthlyUsage, timeInSystem, t.Amount.BigInt()))
	if err != nil {
		return err
	}
	if fee.Cmp(t.FeeCommit) != 0 {
		return ErrFeeMismatch
	}

	debit, err := t.Amount.Add(fee)
	if err != nil {
		return err
	}
	if !from.Balance.GreaterOrEqual(debit) {
		return ErrInsufficientFunds
	}

	newFromBalance, err := from.Balance.Sub(debit)
	if err != nil {
		return err
	}
	to := l.account(t.To, now)
	newToBalance, err := to.Balance.Add(t.Amount)
	if err != nil {
		return err
	}

	from.Balance = newFromBalance
	to.Balance = newToBalance
	from.NextNonce++
	from.MonthlyUsage += t.Amount.Uint64()
	// fee is burned (FeeDestination) — it simply leaves circulation, so no
	// account is credited with it.
	return nil
}

func (l *Ledger) applyMint(m *mutation.Mint, now time.Time) error {
	if l.authSig != nil && !l.authSig(m.AuthoritySig, mintPayload(m)) {
		return ErrBadAuthoritySig
	}
	to := l.account(m.To, now)
	newBalance, err := to.Balance.Add(m.Amount)
	if err != nil {
		return err
	}
	to.Balance = newBalance
	return nil
}

func (l *Ledger) applyBurn(b *mutation.Burn, now time.Time) error {
	from := l.account(b.From, now)
	if b.Nonce != from.NextNonce {
		return ErrBadNonce
	}
	if !from.Balance.GreaterOrEqual(b.Amount) {
		return ErrInsufficientFunds
	}
	newBalance, err := from.Balance.Sub(b.Amount)
	if err != nil {
		return err
	}
	from.Balance = newBalance
	from.NextNonce++
	return nil
}

func (l *Ledger) applyVerifyAgent(v *mutation.VerifyAgent, now time.Time) error {
	a := l.account(v.Account, now)
	if l.verifier != nil && !l.verifier.Verify(v.Account, v.ProofDigest) {
		return errors.New("ledger: proof_digest failed verification")
	}
	a.Verified = true
	return nil
}

func (l *Ledger) applyUpdateUsage(u *mutation.UpdateUsage, now time.Time) error {
	a := l.account(u.Account, now)
	a.MonthlyUsage = u.MonthlyRuv
	a.UsageWindowStart = now
	return nil
}

func (l *Ledger) applyConfigureFees(c *mutation.ConfigureFees, now time.Time) error {
	if !l.controller.Enforced(now) && l.authSig != nil && !l.authSig(c.AuthoritySig, c.Params) {
		return ErrBadAuthoritySig
	}
	if err := l.controller.AuthorizeConfigChange(now, c.AuthoritySig, func(sig, key []byte) bool {
		if l.sigVerifier == nil {
			return false
		}
		ok, err := l.sigVerifier.Verify(key, c.Params, sig)
		return err == nil && ok
	}); err != nil {
		return ErrImmutableLocked
	}
	params, err := fees.Decode(c.Params)
	if err != nil {
		return err
	}
	l.feeParams = params
	return l.controller.RecordConfigChange(l.hasher, configBytes(l.feeParams))
}

func (l *Ledger) applyDeployImmutable(d *mutation.DeployImmutable, now time.Time) error {
	if l.authSig != nil && !l.authSig(d.AuthoritySig, deployPayload(d)) {
		return ErrBadAuthoritySig
	}
	if l.controller.Enforced(now) {
		return ErrImmutableLocked
	}
	return l.controller.DeployImmutable(l.hasher, now, d.GraceSeconds, configBytes(l.feeParams))
}

func deployPayload(d *mutation.DeployImmutable) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], d.GraceSeconds)
	return buf[:]
}

func mintPayload(m *mutation.Mint) []byte {
	buf := make([]byte, 0, 32+16+8)
	buf = append(buf, m.To[:]...)
	buf = append(buf, m.Amount.Bytes()...)
	return buf
}
