// Package primitives defines the thin, substitutable contracts over the
// quantum-resistant cryptographic building blocks the rest of the engine is
// written against. The post-quantum algorithms themselves (ML-KEM,
// ML-DSA, BLAKE3) are out of scope per §1: callers get an interface
// and a default backend built from available primitives, and are free to
// substitute a real PQ backend without touching any consumer of this
// package.
package primitives

import "errors"

// Kind distinguishes the two PrimitiveError variants from §4.1.
type Kind uint8

const (
	// Malformed means the input itself was invalid (wrong length, bad
	// encoding, point not on curve, ...).
	Malformed Kind = iota
	// Backend means the underlying implementation failed for reasons
	// unrelated to the input (RNG exhausted, hardware fault, ...).
	Backend
)

// Error is the uniform failure type every primitive returns instead of
// panicking, per §4.1: "all primitives fail with PrimitiveError::Malformed
// or PrimitiveError::Backend and never panic."
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	kind := "malformed"
	if e.Kind == Backend {
		kind = "backend"
	}
	return "primitives: " + e.Op + ": " + kind + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func malformed(op string, err error) error {
	return &Error{Kind: Malformed, Op: op, Err: err}
}

func backend(op string, err error) error {
	return &Error{Kind: Backend, Op: op, Err: err}
}

var errShortInput = errors.New("input too short")
