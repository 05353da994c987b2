package primitives

import "crypto/rand"

// SecureRandom returns n cryptographically strong random bytes (§4.1). This
// is the one primitive where the standard library's crypto/rand is itself
// the canonical cross-ecosystem choice — no third-party library in the pack
// supersedes it, it reads from the OS CSPRNG, and every other example repo
// that needs secure randomness (rubin-protocol's keymgr, the coinjoin engine)
// calls it directly too.
func SecureRandom(n int) ([]byte, error) {
	if n < 0 {
		return nil, malformed("secure-random", errShortInput)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, backend("secure-random", err)
	}
	return buf, nil
}
