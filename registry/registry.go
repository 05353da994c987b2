// Package registry implements the Agent Registry (§4.8): the
// rolling 30-day usage window rule shared by the ledger's Transfer
// accounting and the fee calculator's β(u) term, plus the external
// verifier-contract predicate VerifyAgent checks against.
package registry

import "time"

// WindowDuration is the rolling usage window length (§4.8: "30 days").
const WindowDuration = 30 * 24 * time.Hour

// WindowDue reports whether windowStart has aged past WindowDuration as of
// now, meaning the window must roll before monthly_usage is trusted.
func WindowDue(windowStart, now time.Time) bool {
	return now.Sub(windowStart) >= WindowDuration
}

// Roll returns the (usage, windowStart) pair a rolled window resets to:
// usage discarded, start reset to now (§4.8).
func Roll(now time.Time) (usage uint64, windowStart time.Time) {
	return 0, now
}

// VerifierContract validates a VerifyAgent mutation's proof_digest.
// §4.6 treats it as "a pure predicate for tests"; this package only fixes
// the contract shape so the ledger can depend on an interface rather than a
// concrete cryptographic proof system, which is an external collaborator
// per §1.
type VerifierContract interface {
	Verify(account [32]byte, proofDigest [32]byte) bool
}

// AcceptAllVerifier is a VerifierContract that approves every proof,
// suitable for the in-process test harnesses where proof validity isn't
// under test.
type AcceptAllVerifier struct{}

func (AcceptAllVerifier) Verify([32]byte, [32]byte) bool { return true }

var _ VerifierContract = AcceptAllVerifier{}
