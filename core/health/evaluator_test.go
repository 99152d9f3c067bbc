package health

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"solvkeep/core/ray"
)

var (
	user  = common.HexToAddress("0xaaaa")
	asset = common.HexToAddress("0xbeef")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// Property 3 (spec §8): users with zero effective debt get the infinity
// sentinel.
func TestHealthFactorSentinelWhenNoDebt(t *testing.T) {
	pos := Evaluate(user, []AssetInput{
		{
			Asset:                              asset,
			CollateralScaled:                   e18(1000),
			VariableDebtScaled:                 big.NewInt(0),
			CollateralIndex:                    ray.RAY,
			VariableDebtIndex:                  ray.RAY,
			CurrentBlock:                       100,
			IndexBlock:                         100,
			PriceUSD:                           1.0,
			DecimalsPlaces:                     e18(1),
			CollateralEnabled:                  true,
			CollateralLiquidationThresholdBps:  8000,
		},
	})
	require.Equal(t, InfinitySentinel, pos.HealthFactor)
	require.Zero(t, pos.EffectiveDebtUSD)
}

func TestHealthFactorBasicComputation(t *testing.T) {
	pos := Evaluate(user, []AssetInput{
		{
			Asset:                              asset,
			CollateralScaled:                   e18(1000),
			VariableDebtScaled:                 e18(500),
			CollateralIndex:                    ray.RAY,
			VariableDebtIndex:                  ray.RAY,
			CurrentBlock:                       100,
			IndexBlock:                         100,
			PriceUSD:                           1.0,
			DecimalsPlaces:                     e18(1),
			CollateralEnabled:                  true,
			CollateralLiquidationThresholdBps:  8000, // 80%
		},
	})
	// effective_collateral = 1000 * 0.8 = 800; effective_debt = 500.
	require.InDelta(t, 800.0, pos.EffectiveCollateralUSD, 0.01)
	require.InDelta(t, 500.0, pos.EffectiveDebtUSD, 0.01)
	require.InDelta(t, 1.6, pos.HealthFactor, 0.001)
}

func TestDisabledCollateralContributesNothing(t *testing.T) {
	pos := Evaluate(user, []AssetInput{
		{
			Asset:                              asset,
			CollateralScaled:                   e18(1000),
			VariableDebtScaled:                 e18(10),
			CollateralIndex:                    ray.RAY,
			VariableDebtIndex:                  ray.RAY,
			CurrentBlock:                       100,
			IndexBlock:                         100,
			PriceUSD:                           1.0,
			DecimalsPlaces:                     e18(1),
			CollateralEnabled:                  false,
			CollateralLiquidationThresholdBps:  8000,
		},
	})
	require.Zero(t, pos.EffectiveCollateralUSD)
	require.Less(t, pos.HealthFactor, 1.0)
}

func TestEModeThresholdOverridesBaseThreshold(t *testing.T) {
	pos := Evaluate(user, []AssetInput{
		{
			Asset:                              asset,
			CollateralScaled:                   e18(1000),
			VariableDebtScaled:                 e18(900),
			CollateralIndex:                    ray.RAY,
			VariableDebtIndex:                  ray.RAY,
			CurrentBlock:                       100,
			IndexBlock:                         100,
			PriceUSD:                           1.0,
			DecimalsPlaces:                     e18(1),
			CollateralEnabled:                  true,
			UserEMode:                          true,
			CollateralLiquidationThresholdBps:  7000,
			EModeLiquidationThresholdBps:       9700,
		},
	})
	// With the base threshold (70%) this user would be underwater;
	// e-mode's 97% threshold keeps them solvent.
	require.Greater(t, pos.HealthFactor, 1.0)
}

func TestAccrualFactorGrowsWithBlocksElapsed(t *testing.T) {
	rate := new(big.Int).Div(ray.RAY, big.NewInt(10)) // 10% APR, RAY-scaled
	noAccrual := accrualFactor(rate, 0, 0)
	withAccrual := accrualFactor(rate, 1_000_000, 0)
	require.Equal(t, 1.0, noAccrual)
	require.Greater(t, withAccrual, noAccrual)
}
