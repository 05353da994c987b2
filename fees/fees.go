// Package fees implements the dynamic fee model (§4.7): the FeeParams the
// network agrees on, and the deterministic fixed-point computation every
// honest node must agree on bit-for-bit.
package fees

import (
	"encoding/binary"
	"errors"
	"math/big"
)

// scale is the fixed-point denominator: 1e9, giving at least 9 decimal
// digits of precision as §4.7 requires.
const scale = 1_000_000_000

// Params mirrors §6's "fees." configuration block. Rates are stored as
// fixed-point numerators over scale (e.g. f_min = 0.001 is FMinNum =
// 1_000_000, since 0.001 * 1e9 = 1e6).
type Params struct {
	FMinNum             int64
	FMaxNum             int64
	FMinVerifiedNum     int64
	FMaxVerifiedNum     int64
	TimeConstantSeconds int64
	UsageThreshold      int64
}

// DefaultParams mirrors the defaults listed in §6.
func DefaultParams() Params {
	return Params{
		FMinNum:             1_000_000,  // 0.001
		FMaxNum:             10_000_000, // 0.010
		FMinVerifiedNum:     2_500_000,  // 0.0025
		FMaxVerifiedNum:     5_000_000,  // 0.005
		TimeConstantSeconds: 7_776_000,  // 90 days
		UsageThreshold:      10_000,
	}
}

var (
	ErrTruncated = errors.New("fees: truncated params encoding")
)

// Encode produces the canonical byte representation ConfigureFees carries
// and the Immutability Controller hashes into config_hash: six big-endian
// int64 fields in struct-declaration order.
func (p Params) Encode() []byte {
	buf := make([]byte, 48)
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.FMinNum))
	binary.BigEndian.PutUint64(buf[8:16], uint64(p.FMaxNum))
	binary.BigEndian.PutUint64(buf[16:24], uint64(p.FMinVerifiedNum))
	binary.BigEndian.PutUint64(buf[24:32], uint64(p.FMaxVerifiedNum))
	binary.BigEndian.PutUint64(buf[32:40], uint64(p.TimeConstantSeconds))
	binary.BigEndian.PutUint64(buf[40:48], uint64(p.UsageThreshold))
	return buf
}

// Decode parses the output of Encode.
func Decode(buf []byte) (Params, error) {
	if len(buf) != 48 {
		return Params{}, ErrTruncated
	}
	return Params{
		FMinNum:             int64(binary.BigEndian.Uint64(buf[0:8])),
		FMaxNum:             int64(binary.BigEndian.Uint64(buf[8:16])),
		FMinVerifiedNum:     int64(binary.BigEndian.Uint64(buf[16:24])),
		FMaxVerifiedNum:     int64(binary.BigEndian.Uint64(buf[24:32])),
		TimeConstantSeconds: int64(binary.BigEndian.Uint64(buf[32:40])),
		UsageThreshold:      int64(binary.BigEndian.Uint64(buf[40:48])),
	}, nil
}

// expNegRatio computes exp(-numerator/denominator) in fixed point (scaled
// by `scale`) via the canonical truncated Taylor series from §4.7: 20
// terms, Kahan-summed, so every conformant implementation produces the
// identical bit pattern for the same inputs regardless of floating-point
// hardware.
//
//	exp(-x) = sum_{n=0..19} (-x)^n / n!
//
// x itself is represented as the exact rational numerator/denominator
// (both non-negative int64s) rather than pre-dividing into a float, so the
// whole computation stays in big.Int fixed-point arithmetic.
func expNegRatio(numerator, denominator int64) *big.Int {
	if denominator == 0 {
		return big.NewInt(scale)
	}

	num := big.NewInt(numerator)
	den := big.NewInt(denominator)
	scaleBig := big.NewInt(scale)

	// term holds the current Taylor term, scaled by `scale`, starting at
	// term_0 = scale (representing 1.0).
	term := new(big.Int).Set(scaleBig)
	sum := new(big.Int).Set(scaleBig)
	comp := big.NewInt(0) // Kahan compensation, scaled by `scale`

	for n := int64(1); n < 20; n++ {
		// term_n = term_{n-1} * (-num) / (den * n)
		term.Mul(term, num)
		term.Neg(term)
		term.Div(term, den)
		term.Div(term, big.NewInt(n))

		y := new(big.Int).Sub(term, comp)
		t := new(big.Int).Add(sum, y)
		comp.Sub(t, sum)
		comp.Sub(comp, y)
		sum = t
	}

	if sum.Sign() < 0 {
		sum.SetInt64(0)
	}
	if sum.Cmp(scaleBig) > 0 {
		sum.Set(scaleBig)
	}
	return sum
}

// smoothing returns scale*(1 - exp(-numerator/denominator)), i.e. the
// fixed-point value of α(t) = 1 - exp(-t/T) or β(u) = 1 - exp(-u/U).
func smoothing(numerator, denominator int64) *big.Int {
	e := expNegRatio(numerator, denominator)
	return new(big.Int).Sub(big.NewInt(scale), e)
}

// Compute implements §4.7's fee formula. amount is the transfer amount in
// minor units, timeInSystemSeconds is t, monthlyUsage is u. The result is
// ceil(amount*rate) clamped to [0, amount].
func Compute(p Params, verified bool, monthlyUsage uint64, timeInSystemSeconds int64, amount *big.Int) *big.Int {
	alpha := smoothing(timeInSystemSeconds, p.TimeConstantSeconds)
	beta := smoothing(int64(monthlyUsage), p.UsageThreshold)

	var rate *big.Int // fixed-point, scaled by scale*scale (alpha/beta are each scale-scaled)
	if verified {
		oneMinusBeta := new(big.Int).Sub(big.NewInt(scale), beta)
		spread := big.NewInt(p.FMaxVerifiedNum - p.FMinVerifiedNum)
		rate = new(big.Int).Mul(spread, alpha)
		rate.Mul(rate, oneMinusBeta)
		base := new(big.Int).Mul(big.NewInt(p.FMinVerifiedNum), big.NewInt(scale))
		base.Mul(base, big.NewInt(scale))
		rate.Add(rate, base)
	} else {
		spread := big.NewInt(p.FMaxNum - p.FMinNum)
		rate = new(big.Int).Mul(spread, alpha)
		rate.Mul(rate, beta)
		base := new(big.Int).Mul(big.NewInt(p.FMinNum), big.NewInt(scale))
		base.Mul(base, big.NewInt(scale))
		rate.Add(rate, base)
	}
	// rate is now fee_rate * scale^3 (FMin*scale^2 + spread*alpha*beta/one-minus-beta).

	feeScaled := new(big.Int).Mul(amount, rate)
	denom := big.NewInt(scale)
	denom.Mul(denom, denom)
	denom.Mul(denom, big.NewInt(scale))

	fee := new(big.Int).Div(feeScaled, denom)
	rem := new(big.Int).Mod(feeScaled, denom)
	if rem.Sign() != 0 {
		fee.Add(fee, big.NewInt(1)) // ceil
	}

	if fee.Sign() < 0 {
		fee.SetInt64(0)
	}
	if fee.Cmp(amount) > 0 {
		fee.Set(amount)
	}
	return fee
}
