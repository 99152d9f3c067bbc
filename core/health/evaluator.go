package health

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/ray"
)

// Evaluate folds a user's per-asset inputs into a single HealthPosition
// following the accrual, threshold-selection, and summation rules of
// spec §4.7.
func Evaluate(user common.Address, assets []AssetInput) HealthPosition {
	var totalCollateralUSD, totalDebtUSD float64
	contributions := make([]AssetContribution, 0, len(assets))

	for _, a := range assets {
		blocksElapsed := uint64(0)
		if a.CurrentBlock > a.IndexBlock {
			blocksElapsed = a.CurrentBlock - a.IndexBlock
		}

		underlyingCollateral := toUnderlyingOrZero(a.CollateralScaled, a.CollateralIndex)
		underlyingDebt := toUnderlyingOrZero(a.VariableDebtScaled, a.VariableDebtIndex)

		collateralFactor := accrualFactor(a.InterestRateCollateral, blocksElapsed, a.AccrualProjectionFactor)
		debtFactor := accrualFactor(a.InterestRateDebt, blocksElapsed, a.AccrualProjectionFactor)

		accruedCollateral := floorMulFloat(underlyingCollateral, collateralFactor)
		accruedDebt := ceilMulFloat(underlyingDebt, debtFactor)

		thresholdBps := a.CollateralLiquidationThresholdBps
		if a.UserEMode {
			thresholdBps = a.EModeLiquidationThresholdBps
		}

		decimals := a.DecimalsPlaces
		if decimals == nil || decimals.Sign() == 0 {
			decimals = big.NewInt(1)
		}
		decimalsFloat, _ := new(big.Float).SetInt(decimals).Float64()

		enabledFactor := 0.0
		if a.CollateralEnabled {
			enabledFactor = 1.0
		}
		collateralFloat, _ := new(big.Float).SetInt(accruedCollateral).Float64()
		effectiveCollateralUSD := collateralFloat * float64(thresholdBps) * enabledFactor * a.PriceUSD / (10_000 * decimalsFloat)

		debtFloat, _ := new(big.Float).SetInt(accruedDebt).Float64()
		effectiveDebtUSD := debtFloat * a.PriceUSD / decimalsFloat

		totalCollateralUSD += effectiveCollateralUSD
		totalDebtUSD += effectiveDebtUSD

		contributions = append(contributions, AssetContribution{
			Asset:                  a.Asset,
			AccruedCollateral:      accruedCollateral,
			AccruedDebt:            accruedDebt,
			EffectiveCollateralUSD: effectiveCollateralUSD,
			EffectiveDebtUSD:       effectiveDebtUSD,
			PriceUSD:               a.PriceUSD,
			DecimalsPlaces:         decimals,
		})
	}

	healthFactor := InfinitySentinel
	if totalDebtUSD != 0 {
		healthFactor = totalCollateralUSD / totalDebtUSD
	}

	return HealthPosition{
		User:                   user,
		HealthFactor:           healthFactor,
		EffectiveCollateralUSD: totalCollateralUSD,
		EffectiveDebtUSD:       totalDebtUSD,
		Assets:                 contributions,
	}
}

func toUnderlyingOrZero(scaled, index *big.Int) *big.Int {
	if scaled == nil || scaled.Sign() == 0 || index == nil {
		return big.NewInt(0)
	}
	underlying, err := ray.ToUnderlying(scaled, index)
	if err != nil {
		return big.NewInt(0)
	}
	return underlying
}
