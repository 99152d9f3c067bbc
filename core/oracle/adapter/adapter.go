// Package adapter implements the multiplier-adapter dispatch table used by
// the Oracle Price Composer (spec §4.5.3). Configuration names an adapter
// kind per asset-source; this package owns the closed set of kinds and the
// code path each one runs.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/ray"
)

// Kind enumerates the recognized multiplier adapter types. The set is
// closed: Resolve fails an asset's initialization on anything else
// (spec §4.5.3).
type Kind string

const (
	ConstantOne               Kind = "constant-1"
	LiquidStakingRatio        Kind = "liquid-staking-ratio"
	SynchronicityPriceAdapter Kind = "synchronicity-price-adapter"
	PendleDiscount            Kind = "pendle-discount"
	GenericRatioProvider      Kind = "generic-ratio-provider"
)

// ErrUnknownKind is returned by Resolve for any Kind outside the closed set.
var ErrUnknownKind = errors.New("adapter: unknown multiplier adapter kind")

// Reader abstracts the single EVM read each adapter needs, backed in
// production by eth_call and in tests by a fake.
type Reader interface {
	CallUint256(ctx context.Context, contract common.Address, selector string) (*big.Int, error)
}

// Adapter computes a RAY-scaled multiplier value.
type Adapter interface {
	Value(ctx context.Context) (*big.Int, error)
}

// Params configures the adapter kinds that need more than a reader.
type Params struct {
	// LiquidStakingRatio, GenericRatioProvider
	Contract common.Address
	// SynchronicityPriceAdapter
	FeedA, FeedB common.Address
	// PendleDiscount
	RatePerSecondRay *big.Int // continuously-compounded discount rate, RAY-scaled
	Maturity         time.Time
	Now              func() time.Time
}

// Resolve constructs the Adapter for kind, wiring reader and params as the
// kind requires. Unknown kinds return ErrUnknownKind.
func Resolve(kind Kind, reader Reader, params Params) (Adapter, error) {
	switch kind {
	case ConstantOne:
		return constantOneAdapter{}, nil
	case LiquidStakingRatio:
		return liquidStakingRatioAdapter{reader: reader, token: params.Contract}, nil
	case SynchronicityPriceAdapter:
		return synchronicityAdapter{reader: reader, feedA: params.FeedA, feedB: params.FeedB}, nil
	case PendleDiscount:
		now := params.Now
		if now == nil {
			now = time.Now
		}
		return pendleDiscountAdapter{rate: params.RatePerSecondRay, maturity: params.Maturity, now: now}, nil
	case GenericRatioProvider:
		return genericRatioAdapter{reader: reader, contract: params.Contract}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

type constantOneAdapter struct{}

func (constantOneAdapter) Value(context.Context) (*big.Int, error) {
	return new(big.Int).Set(ray.RAY), nil
}

// liquidStakingRatioAdapter reads getExchangeRate() on a wstETH/rETH-style
// token, already RAY-scaled by the token's own convention.
type liquidStakingRatioAdapter struct {
	reader Reader
	token  common.Address
}

func (a liquidStakingRatioAdapter) Value(ctx context.Context) (*big.Int, error) {
	rate, err := a.reader.CallUint256(ctx, a.token, "getExchangeRate()")
	if err != nil {
		return nil, fmt.Errorf("adapter: liquid staking ratio: %w", err)
	}
	return rate, nil
}

// synchronicityAdapter reads two feeds and divides feedA by feedB, RAY-scaled.
type synchronicityAdapter struct {
	reader       Reader
	feedA, feedB common.Address
}

func (a synchronicityAdapter) Value(ctx context.Context) (*big.Int, error) {
	numerator, err := a.reader.CallUint256(ctx, a.feedA, "latestAnswer()")
	if err != nil {
		return nil, fmt.Errorf("adapter: synchronicity feed A: %w", err)
	}
	denominator, err := a.reader.CallUint256(ctx, a.feedB, "latestAnswer()")
	if err != nil {
		return nil, fmt.Errorf("adapter: synchronicity feed B: %w", err)
	}
	return ray.RDivFloor(numerator, denominator)
}

// pendleDiscountAdapter computes exp(-r*t) to maturity.
type pendleDiscountAdapter struct {
	rate     *big.Int
	maturity time.Time
	now      func() time.Time
}

func (a pendleDiscountAdapter) Value(context.Context) (*big.Int, error) {
	t := a.maturity.Sub(a.now()).Seconds()
	if t < 0 {
		t = 0
	}
	rateFloat := new(big.Float).SetInt(a.rate)
	rayFloat := new(big.Float).SetInt(ray.RAY)
	r, _ := new(big.Float).Quo(rateFloat, rayFloat).Float64()

	discount := math.Exp(-r * t)
	result, _ := new(big.Float).Mul(big.NewFloat(discount), rayFloat).Int(nil)
	return result, nil
}

// genericRatioAdapter reads a ratio() view, already RAY-scaled.
type genericRatioAdapter struct {
	reader   Reader
	contract common.Address
}

func (a genericRatioAdapter) Value(ctx context.Context) (*big.Int, error) {
	v, err := a.reader.CallUint256(ctx, a.contract, "ratio()")
	if err != nil {
		return nil, fmt.Errorf("adapter: generic ratio provider: %w", err)
	}
	return v, nil
}
