// Package health implements the Health-Factor Evaluator: it folds scaled
// balances, liquidity indices, oracle prices, and configuration into a
// per-user solvency snapshot (spec §4.7).
package health

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/ray"
)

// InfinitySentinel is the health factor reported for a user carrying zero
// debt (spec §4.7, testable property 3).
const InfinitySentinel = 999.9

// SecondsPerYear and SecondsPerBlock parameterize the interest accrual
// projection applied between a position's last index update and the
// block the evaluation is performed against.
const (
	SecondsPerYear  = 365 * 24 * 60 * 60
	SecondsPerBlock = 12.0
)

// AssetInput bundles everything the evaluator needs about one
// (user, asset) row to fold it into a HealthPosition.
type AssetInput struct {
	Asset                             common.Address
	CollateralScaled                  *big.Int
	VariableDebtScaled                *big.Int
	CollateralIndex                   *big.Int
	VariableDebtIndex                 *big.Int
	InterestRateCollateral            *big.Int // RAY-scaled annualized rate
	InterestRateDebt                  *big.Int
	IndexBlock                        uint64 // block the indices above were last observed at
	CurrentBlock                      uint64
	PriceUSD                          float64
	DecimalsPlaces                    *big.Int
	CollateralEnabled                 bool
	UserEMode                         bool
	CollateralLTVBps                  uint16
	CollateralLiquidationThresholdBps uint16
	EModeLiquidationThresholdBps      uint16

	// AccrualProjectionFactor scales the interest-accrual extrapolation
	// term (spec §9's "`· 12` appearing in some but not all source views").
	// Zero is treated as the spec's default of 1 (no extrapolation beyond
	// the literal blocks-elapsed term).
	AccrualProjectionFactor float64
}

// AssetContribution is one asset's resolved contribution to a user's
// position, retained for diagnostics alongside the aggregate HealthPosition.
type AssetContribution struct {
	Asset                  common.Address
	AccruedCollateral      *big.Int
	AccruedDebt            *big.Int
	EffectiveCollateralUSD float64
	EffectiveDebtUSD       float64
	// PriceUSD and DecimalsPlaces are carried through from the input row so
	// downstream consumers (the Liquidation Candidate Engine's profit_usd
	// formula, spec §4.8) don't need to re-resolve them.
	PriceUSD       float64
	DecimalsPlaces *big.Int
}

// HealthPosition is the per-user solvency snapshot the Evaluator produces.
type HealthPosition struct {
	User                   common.Address
	HealthFactor           float64
	EffectiveCollateralUSD float64
	EffectiveDebtUSD       float64
	Assets                 []AssetContribution
}

// accrualFactor computes 1 + rate/RAY/SECONDS_PER_YEAR * blocksElapsed *
// SECONDS_PER_BLOCK * projectionFactor (spec §4.7, §9). projectionFactor
// of 0 is treated as 1, the spec's stated default.
func accrualFactor(rateRay *big.Int, blocksElapsed uint64, projectionFactor float64) float64 {
	if rateRay == nil {
		return 1.0
	}
	if projectionFactor == 0 {
		projectionFactor = 1.0
	}
	rateFloat := new(big.Float).SetInt(rateRay)
	rayFloat := new(big.Float).SetInt(ray.RAY)
	rate, _ := new(big.Float).Quo(rateFloat, rayFloat).Float64()
	return 1.0 + (rate/SecondsPerYear)*float64(blocksElapsed)*SecondsPerBlock*projectionFactor
}

func floorMulFloat(x *big.Int, factor float64) *big.Int {
	xf := new(big.Float).SetInt(x)
	product := new(big.Float).Mul(xf, big.NewFloat(factor))
	out, _ := product.Int(nil)
	return out
}

func ceilMulFloat(x *big.Int, factor float64) *big.Int {
	xf := new(big.Float).SetInt(x)
	product := new(big.Float).Mul(xf, big.NewFloat(factor))
	floor, acc := product.Int(nil)
	if acc == big.Exact || product.Cmp(new(big.Float).SetInt(floor)) == 0 {
		return floor
	}
	return floor.Add(floor, big.NewInt(1))
}
