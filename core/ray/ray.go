// Package ray implements the fixed-point arithmetic kernel the rest of the
// pipeline is built on: every scaled balance, liquidity index, and oracle
// price component is a 256-bit integer expressed in RAY units (1e27).
//
// All operations compute their intermediate product in an unbounded
// math/big representation — strictly wider than the 256 bits a result must
// ultimately fit in — and only narrow back to a uint256 after the division,
// so no intermediate step can silently truncate. Overflow and
// division-by-zero are reported as errors rather than panics; callers own
// the decision to skip an event or fail an operation (see spec §7).
package ray

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// RAY is the fixed-point scale used for indices and ratios throughout the
// pipeline: 10^27.
var RAY = mustBigInt("1000000000000000000000000000")

// BasisPoints is the denominator for basis-point fractions (10_000 = 100%).
var BasisPoints = big.NewInt(10_000)

var (
	// ErrOverflow is returned when a computed result cannot be represented
	// in a signed 256-bit integer.
	ErrOverflow = errors.New("ray: result exceeds 256-bit capacity")
	// ErrDivisionByZero is returned whenever the divisor of a ray operation
	// is zero.
	ErrDivisionByZero = errors.New("ray: division by zero")
)

// maxSigned256 and minSigned256 bound the signed 256-bit range used to
// detect overflow on the way out of every kernel operation.
var (
	maxSigned256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minSigned256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("ray: invalid big integer constant " + value)
	}
	return v
}

// checkFits256 verifies that x fits within a signed 256-bit integer,
// returning ErrOverflow otherwise. This is the narrowing step performed
// after every wide intermediate computation.
func checkFits256(x *big.Int) error {
	if x.Cmp(maxSigned256) > 0 || x.Cmp(minSigned256) < 0 {
		return ErrOverflow
	}
	return nil
}

// ToScaled converts an underlying token amount into its RAY-scaled
// representation given the current liquidity index:
//
//	to_scaled(underlying, index) = floor(underlying * RAY / index)
func ToScaled(underlying, index *big.Int) (*big.Int, error) {
	return rdivFloor(underlying, index, RAY)
}

// ToUnderlying converts a RAY-scaled balance back into an underlying token
// amount given the current liquidity index, floor rounding:
//
//	to_underlying(scaled, index) = floor(scaled * index / RAY)
func ToUnderlying(scaled, index *big.Int) (*big.Int, error) {
	return rmulFloor(scaled, index, RAY)
}

// ToUnderlyingCeil is the ceiling-rounded variant of ToUnderlying, for debt
// amounts the protocol rounds up in its own favor. core/health does not call
// it: it converts debt with ToUnderlying and rounds the accrued amount up.
func ToUnderlyingCeil(scaled, index *big.Int) (*big.Int, error) {
	return rmulCeil(scaled, index, RAY)
}

// RMulFloor computes floor(a*b / RAY).
func RMulFloor(a, b *big.Int) (*big.Int, error) {
	return rmulFloor(a, b, RAY)
}

// RMulCeil computes ceil(a*b / RAY).
func RMulCeil(a, b *big.Int) (*big.Int, error) {
	return rmulCeil(a, b, RAY)
}

// RDivFloor computes floor(a*RAY / b).
func RDivFloor(a, b *big.Int) (*big.Int, error) {
	return rdivFloor(a, b, RAY)
}

// RDivCeil computes ceil(a*RAY / b).
func RDivCeil(a, b *big.Int) (*big.Int, error) {
	return rdivCeil(a, b, RAY)
}

// MulBps computes floor(value * bps / 10_000), the basis-point scaling used
// for LTV, liquidation threshold/bonus, and fee calculations.
func MulBps(value *big.Int, bps uint64) (*big.Int, error) {
	if value == nil {
		return nil, errors.New("ray: nil value")
	}
	wide := new(big.Int).Mul(value, new(big.Int).SetUint64(bps))
	result := floorDiv(wide, BasisPoints)
	if err := checkFits256(result); err != nil {
		return nil, err
	}
	return result, nil
}

func rmulFloor(a, b, scale *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, errors.New("ray: nil operand")
	}
	wide := new(big.Int).Mul(a, b) // wide intermediate, unbounded
	result := floorDiv(wide, scale)
	if err := checkFits256(result); err != nil {
		return nil, err
	}
	return result, nil
}

func rmulCeil(a, b, scale *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, errors.New("ray: nil operand")
	}
	wide := new(big.Int).Mul(a, b)
	result := ceilDiv(wide, scale)
	if err := checkFits256(result); err != nil {
		return nil, err
	}
	return result, nil
}

func rdivFloor(a, b, scale *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, errors.New("ray: nil operand")
	}
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	wide := new(big.Int).Mul(a, scale)
	result := floorDiv(wide, b)
	if err := checkFits256(result); err != nil {
		return nil, err
	}
	return result, nil
}

func rdivCeil(a, b, scale *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, errors.New("ray: nil operand")
	}
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	wide := new(big.Int).Mul(a, scale)
	result := ceilDiv(wide, b)
	if err := checkFits256(result); err != nil {
		return nil, err
	}
	return result, nil
}

// floorDiv performs truncated-toward-negative-infinity division, matching
// the floor semantics the spec requires for all production code paths.
func floorDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) != (den.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return q
}

// ceilDiv performs rounding-toward-positive-infinity division.
func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) == (den.Sign() < 0) {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// FitsUint256 reports whether x can be represented as an unsigned 256-bit
// integer, mirroring the overflow check the EVM itself performs when a
// computed value is written back to storage.
func FitsUint256(x *big.Int) bool {
	if x == nil || x.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(x)
	return !overflow
}
