package amount

import (
	"encoding/binary"
	"errors"
	"math/big"
)

// Uint128 represents the u128 balance/amount type from §3. Go has no
// native 128-bit integer; rather than hand-roll carry/borrow arithmetic (as
// a bespoke struct{hi, lo uint64} would require), this wraps math/big.Int,
// the same library vms/platformvm/reward reaches for its wide-integer
// arithmetic (reward.Split's optimistic-then-big.Int path), and clamps
// every result back into the [0, 2^128) range so overflow and underflow
// are caught instead of silently wrapping.
type Uint128 struct {
	v *big.Int
}

var (
	uint128Max   = new(big.Int).Lsh(big.NewInt(1), 128)
	errNegative  = errors.New("ledger: uint128 would be negative")
	errOverflow  = errors.New("ledger: uint128 overflow")
	errByteWidth = errors.New("ledger: uint128 requires exactly 16 bytes")
)

// ZeroU128 is the additive identity.
func ZeroU128() Uint128 {
	return Uint128{v: big.NewInt(0)}
}

// U128FromUint64 lifts a uint64 into Uint128.
func U128FromUint64(n uint64) Uint128 {
	return Uint128{v: new(big.Int).SetUint64(n)}
}

// U128FromBytes decodes a big-endian 16-byte encoding, matching the fixed
// width the persistence layer and wire codec use for balances and amounts.
func U128FromBytes(b []byte) (Uint128, error) {
	if len(b) != 16 {
		return Uint128{}, errByteWidth
	}
	return Uint128{v: new(big.Int).SetBytes(b)}, nil
}

// Bytes encodes the value as a fixed 16-byte big-endian buffer.
func (a Uint128) Bytes() []byte {
	out := make([]byte, 16)
	a.v.FillBytes(out)
	return out
}

func (a Uint128) bigOrZero() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// Add returns a+b, erroring if the result would exceed 2^128-1.
func (a Uint128) Add(b Uint128) (Uint128, error) {
	sum := new(big.Int).Add(a.bigOrZero(), b.bigOrZero())
	if sum.Cmp(uint128Max) >= 0 {
		return Uint128{}, errOverflow
	}
	return Uint128{v: sum}, nil
}

// Sub returns a-b, erroring if the result would be negative.
func (a Uint128) Sub(b Uint128) (Uint128, error) {
	diff := new(big.Int).Sub(a.bigOrZero(), b.bigOrZero())
	if diff.Sign() < 0 {
		return Uint128{}, errNegative
	}
	return Uint128{v: diff}, nil
}

// Cmp compares a to b: -1, 0, or 1.
func (a Uint128) Cmp(b Uint128) int {
	return a.bigOrZero().Cmp(b.bigOrZero())
}

// GreaterOrEqual reports whether a >= b.
func (a Uint128) GreaterOrEqual(b Uint128) bool {
	return a.Cmp(b) >= 0
}

// IsZero reports whether the value is zero.
func (a Uint128) IsZero() bool {
	return a.bigOrZero().Sign() == 0
}

// String renders the value in decimal.
func (a Uint128) String() string {
	return a.bigOrZero().String()
}

// MulUint64 multiplies by a uint64 scalar, used by the fee calculator's
// rate*amount computation before the final division back into fixed point.
func (a Uint128) MulUint64(n uint64) (Uint128, error) {
	prod := new(big.Int).Mul(a.bigOrZero(), new(big.Int).SetUint64(n))
	if prod.Cmp(uint128Max) >= 0 {
		return Uint128{}, errOverflow
	}
	return Uint128{v: prod}, nil
}

// Uint64 returns the value truncated to fit in a uint64's encoding length
// prefix when the caller has already established it is in range (e.g. a
// previously-validated fee amount).
func (a Uint128) Uint64() uint64 {
	return binary.BigEndian.Uint64(a.Bytes()[8:])
}

// BigInt exposes the underlying value for callers (the fee calculator) that
// need to do fixed-point arithmetic math/big.Int doesn't gain anything from
// being re-wrapped for. The returned value is a copy; mutating it does not
// affect a.
func (a Uint128) BigInt() *big.Int {
	return new(big.Int).Set(a.bigOrZero())
}

// FromBigInt lifts a non-negative big.Int back into Uint128, erroring if it
// is negative or exceeds 2^128-1.
func FromBigInt(v *big.Int) (Uint128, error) {
	if v.Sign() < 0 {
		return Uint128{}, errNegative
	}
	if v.Cmp(uint128Max) >= 0 {
		return Uint128{}, errOverflow
	}
	return Uint128{v: new(big.Int).Set(v)}, nil
}
