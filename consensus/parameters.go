package consensus

import (
	"errors"
	"time"
)

// Parameters configures the QR-Avalanche engine (§4.4, §6 "Configuration").
// Every honest node on the network MUST run identical Parameters.
type Parameters struct {
	// K is the sample size: number of peers queried per round per vertex.
	K int
	// Alpha is the quorum size: minimum "prefer" responses to record a chit.
	// Must satisfy Alpha > K/2.
	Alpha int
	// Beta is the number of consecutive successful quorums required for
	// finality.
	Beta uint32
	// QueryTimeout bounds how long a round waits for a peer's response.
	QueryTimeout time.Duration
	// MaxInFlightQueriesPerPeer bounds concurrent outstanding queries to a
	// single peer.
	MaxInFlightQueriesPerPeer int
	// MaxParents bounds how many parents a submitted vertex may declare.
	MaxParents int
}

// DefaultParameters mirrors the defaults listed in §6.
func DefaultParameters() Parameters {
	return Parameters{
		K:                         20,
		Alpha:                     14,
		Beta:                      20,
		QueryTimeout:              500 * time.Millisecond,
		MaxInFlightQueriesPerPeer: 8,
		MaxParents:                4,
	}
}

var (
	ErrKTooSmall          = errors.New("consensus: k must be positive")
	ErrAlphaOutOfRange    = errors.New("consensus: alpha must satisfy k/2 < alpha <= k")
	ErrBetaTooSmall       = errors.New("consensus: beta must be positive")
	ErrQueryTimeoutTooLow = errors.New("consensus: query_timeout must be positive")
	ErrMaxParentsInvalid  = errors.New("consensus: max_parents must be in [1,8]")
)

// Valid checks the algebraic constraints from §4.4 and §6.
func (p Parameters) Valid() error {
	if p.K <= 0 {
		return ErrKTooSmall
	}
	if p.Alpha <= p.K/2 || p.Alpha > p.K {
		return ErrAlphaOutOfRange
	}
	if p.Beta == 0 {
		return ErrBetaTooSmall
	}
	if p.QueryTimeout <= 0 {
		return ErrQueryTimeoutTooLow
	}
	if p.MaxParents < 1 || p.MaxParents > 8 {
		return ErrMaxParentsInvalid
	}
	return nil
}
