package primitives

import (
	"crypto/subtle"

	"golang.org/x/crypto/nacl/sign"
)

// PublicKeySize and SecretKeySize match the nacl/sign backend. A lattice-based
// ML-DSA backend would use different sizes; callers must treat these as
// backend-specific constants, not protocol constants.
const (
	PublicKeySize = 32
	SecretKeySize = 64
	SignatureSize = 64
)

// Signer signs messages with a secret key. Implementations MUST NOT branch
// on secret bits (§4.1).
type Signer interface {
	Sign(sk []byte, msg []byte) ([]byte, error)
}

// Verifier verifies a signature against a public key and message.
type Verifier interface {
	Verify(pk []byte, msg []byte, sig []byte) (bool, error)
}

// NaClSigner is the default Signer/Verifier backend, standing in for a
// lattice-based ML-DSA scheme treated as a pluggable black box.
// golang.org/x/crypto/nacl/sign wraps ed25519 with a constant-time, fixed
// key-size API that matches the shape §4.1 requires (no secret-dependent
// branching in Sign).
type NaClSigner struct{}

var (
	_ Signer   = NaClSigner{}
	_ Verifier = NaClSigner{}
)

// Sign implements Signer. sk must be SecretKeySize bytes.
func (NaClSigner) Sign(sk []byte, msg []byte) ([]byte, error) {
	if len(sk) != SecretKeySize {
		return nil, malformed("sign", errShortInput)
	}
	var skArr [SecretKeySize]byte
	copy(skArr[:], sk)
	signed := sign.Sign(nil, msg, &skArr)
	// nacl/sign.Sign returns the signature followed by the message; the
	// detached signature is the first SignatureSize bytes.
	return signed[:SignatureSize], nil
}

// Verify implements Verifier. pk must be PublicKeySize bytes and sig must be
// SignatureSize bytes. constant_time_eq (crypto/subtle) guards the final
// comparison per §9's "all comparisons of signatures ... must use
// constant_time_eq" rule.
func (NaClSigner) Verify(pk []byte, msg []byte, sig []byte) (bool, error) {
	if len(pk) != PublicKeySize {
		return false, malformed("verify", errShortInput)
	}
	if len(sig) != SignatureSize {
		return false, malformed("verify", errShortInput)
	}
	var pkArr [PublicKeySize]byte
	copy(pkArr[:], pk)

	signedMsg := make([]byte, 0, len(sig)+len(msg))
	signedMsg = append(signedMsg, sig...)
	signedMsg = append(signedMsg, msg...)

	opened, ok := sign.Open(nil, signedMsg, &pkArr)
	if !ok {
		return false, nil
	}
	return ConstantTimeEq(opened, msg), nil
}

// ConstantTimeEq compares two byte slices in time independent of their
// content, for any comparison involving secret-derived material (§4.1, §9).
func ConstantTimeEq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
