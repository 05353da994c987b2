package primitives

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KEMPublicKeySize/KEMSecretKeySize/SharedSecretSize describe
// the default X25519-based backend. §4.1 scopes KEM use to "optional onion
// envelopes into the mempool" only; the engine, ledger, and consensus core
// never call this package directly.
const (
	KEMPublicKeySize = 32
	KEMSecretKeySize = 32
	SharedSecretSize = 32
	kemNonceSize     = 24
)

// KEM is the encapsulation/decapsulation contract from §4.1. A real ML-KEM
// backend is a drop-in replacement; nothing outside this file depends on the
// X25519 construction.
type KEM interface {
	Encapsulate(pk []byte) (ciphertext, sharedSecret []byte, err error)
	Decapsulate(sk []byte, ciphertext []byte) (sharedSecret []byte, err error)
}

// X25519KEM implements KEM by combining an ephemeral X25519 key exchange
// with a box-sealed shared secret, the classical-crypto stand-in for a
// lattice-based ML-KEM treated as a pluggable black box.
type X25519KEM struct{}

var _ KEM = X25519KEM{}

// Encapsulate implements KEM. The returned ciphertext is the sender's
// ephemeral public key followed by a nacl/box-sealed random shared secret.
func (X25519KEM) Encapsulate(pk []byte) ([]byte, []byte, error) {
	if len(pk) != KEMPublicKeySize {
		return nil, nil, malformed("encapsulate", errShortInput)
	}
	var recipientPK [32]byte
	copy(recipientPK[:], pk)

	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, backend("encapsulate", err)
	}

	sharedSecret := make([]byte, SharedSecretSize)
	if _, err := rand.Read(sharedSecret); err != nil {
		return nil, nil, backend("encapsulate", err)
	}

	var nonce [kemNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nil, backend("encapsulate", err)
	}

	sealed := box.Seal(nonce[:], sharedSecret, &nonce, &recipientPK, ephPriv)
	ciphertext := append(append([]byte{}, ephPub[:]...), sealed...)
	return ciphertext, sharedSecret, nil
}

// Decapsulate implements KEM.
func (X25519KEM) Decapsulate(sk []byte, ciphertext []byte) ([]byte, error) {
	if len(sk) != KEMSecretKeySize {
		return nil, malformed("decapsulate", errShortInput)
	}
	if len(ciphertext) < 32+kemNonceSize+box.Overhead {
		return nil, malformed("decapsulate", errShortInput)
	}
	var recipientSK [32]byte
	copy(recipientSK[:], sk)

	var ephPub [32]byte
	copy(ephPub[:], ciphertext[:32])
	sealed := ciphertext[32:]

	var nonce [kemNonceSize]byte
	copy(nonce[:], sealed[:kemNonceSize])

	opened, ok := box.Open(nil, sealed[kemNonceSize:], &nonce, &ephPub, &recipientSK)
	if !ok {
		return nil, malformed("decapsulate", errShortInput)
	}
	return opened, nil
}

// DeriveKEMPublicKey derives the X25519 public key for an X25519 secret key,
// a helper primarily used by tests and by keystore collaborators.
func DeriveKEMPublicKey(sk []byte) ([]byte, error) {
	if len(sk) != KEMSecretKeySize {
		return nil, malformed("derive-public", errShortInput)
	}
	var skArr, pk [32]byte
	copy(skArr[:], sk)
	curve25519.ScalarBaseMult(&pk, &skArr)
	return pk[:], nil
}
