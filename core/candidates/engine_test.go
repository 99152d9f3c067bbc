package candidates

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"solvkeep/core/health"
	"solvkeep/core/protoconfig"
)

var (
	alice = common.HexToAddress("0xa11ce")
	weth  = common.HexToAddress("0x7e7e")
	usdc  = common.HexToAddress("0x05dc")
	dai   = common.HexToAddress("0xda1")
)

type fakeHealth struct {
	positions []health.HealthPosition
	emode     map[common.Address]bool
}

func (f *fakeHealth) Scan(filter func(health.HealthPosition) bool) []health.HealthPosition {
	var out []health.HealthPosition
	for _, p := range f.positions {
		if filter == nil || filter(p) {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeHealth) UserEMode(addr common.Address) bool {
	return f.emode[addr]
}

type fakeConfig struct {
	cfgs map[common.Address]protoconfig.AssetConfig
}

func (f *fakeConfig) Get(asset common.Address) (protoconfig.AssetConfig, bool) {
	c, ok := f.cfgs[asset]
	return c, ok
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func basicPosition(hf float64) health.HealthPosition {
	return health.HealthPosition{
		User:                   alice,
		HealthFactor:           hf,
		EffectiveCollateralUSD: 20_000,
		EffectiveDebtUSD:       15_000,
		Assets: []health.AssetContribution{
			{
				Asset:                  weth,
				AccruedCollateral:      e18(10),
				EffectiveCollateralUSD: 20_000,
				PriceUSD:               2000,
				DecimalsPlaces:         e18(1),
			},
			{
				Asset:            usdc,
				AccruedDebt:      e18(15_000),
				EffectiveDebtUSD: 15_000,
				PriceUSD:         1,
				DecimalsPlaces:   e18(1),
			},
		},
	}
}

func newEngine(positions []health.HealthPosition, emode map[common.Address]bool, cfgs map[common.Address]protoconfig.AssetConfig, paths *SwapPathBook) *Engine {
	return &Engine{
		health: &fakeHealth{positions: positions, emode: emode},
		config: &fakeConfig{cfgs: cfgs},
		swaps:  paths,
		cfg:    DefaultConfig(weth),
	}
}

func TestAdmissionBandExcludesHealthyUsers(t *testing.T) {
	paths := NewSwapPathBook()
	paths.Register(weth, usdc, SwapPath{TokenIn: weth, TokenOut: usdc})
	e := newEngine([]health.HealthPosition{basicPosition(1.5)}, nil, map[common.Address]protoconfig.AssetConfig{
		weth: {LiquidationBonusBps: 10_500},
	}, paths)
	require.Empty(t, e.Scan())
}

func TestAdmissionBandExcludesBelowFloor(t *testing.T) {
	paths := NewSwapPathBook()
	e := newEngine([]health.HealthPosition{basicPosition(0.9)}, nil, nil, paths)
	require.Empty(t, e.Scan())
}

func TestCandidateEmittedWithPositiveProfit(t *testing.T) {
	paths := NewSwapPathBook()
	paths.Register(weth, usdc, SwapPath{TokenIn: weth, TokenOut: usdc})
	cfgs := map[common.Address]protoconfig.AssetConfig{
		weth: {LiquidationBonusBps: 10_500}, // 5% bonus
	}
	e := newEngine([]health.HealthPosition{basicPosition(1.1)}, nil, cfgs, paths)
	out := e.Scan()
	require.Len(t, out, 1)
	require.Equal(t, weth, out[0].CollateralAsset)
	require.Equal(t, usdc, out[0].DebtAsset)
	require.Greater(t, out[0].ProfitUSD, 0.0)
	require.InDelta(t, 7.5e21, out[0].MaxDebtToCover, 0.01) // 15000e18 * 0.5, in the debt token's base units
}

func TestMissingSwapPathExcludesCandidate(t *testing.T) {
	paths := NewSwapPathBook() // no paths registered
	cfgs := map[common.Address]protoconfig.AssetConfig{
		weth: {LiquidationBonusBps: 10_500},
	}
	e := newEngine([]health.HealthPosition{basicPosition(1.1)}, nil, cfgs, paths)
	require.Empty(t, e.Scan())
}

func TestSameAssetCollateralAndDebtNeedsNoPath(t *testing.T) {
	pos := basicPosition(1.1)
	pos.Assets = []health.AssetContribution{
		{
			Asset:                  usdc,
			AccruedCollateral:      e18(20_000),
			EffectiveCollateralUSD: 20_000,
			AccruedDebt:            e18(15_000),
			EffectiveDebtUSD:       15_000,
			PriceUSD:               1,
			DecimalsPlaces:         e18(1),
		},
	}
	cfgs := map[common.Address]protoconfig.AssetConfig{
		usdc: {LiquidationBonusBps: 10_500},
	}
	paths := NewSwapPathBook()
	e := newEngine([]health.HealthPosition{pos}, nil, cfgs, paths)
	out := e.Scan()
	require.Len(t, out, 1)
	require.Nil(t, out[0].CollateralToDebt)
	require.Nil(t, out[0].CollateralToWETH)
}

func TestEModeBonusOverridesBaseBonus(t *testing.T) {
	paths := NewSwapPathBook()
	paths.Register(weth, usdc, SwapPath{TokenIn: weth, TokenOut: usdc})
	cfgs := map[common.Address]protoconfig.AssetConfig{
		weth: {LiquidationBonusBps: 10_500, HasEMode: true, EModeLiquidationBonusBps: 10_100},
	}
	e := newEngine([]health.HealthPosition{basicPosition(1.1)}, map[common.Address]bool{alice: true}, cfgs, paths)
	out := e.Scan()
	require.Len(t, out, 1)
	require.Equal(t, uint16(10_100), out[0].LiquidationBonusBps)
}

func TestPriorityCollateralOrdersAheadOfProfit(t *testing.T) {
	paths := NewSwapPathBook()
	paths.Register(weth, usdc, SwapPath{})
	paths.Register(dai, usdc, SwapPath{})
	paths.Register(dai, weth, SwapPath{})

	pos := basicPosition(1.1)
	pos.Assets = []health.AssetContribution{
		{Asset: weth, AccruedCollateral: e18(10), EffectiveCollateralUSD: 20_000, PriceUSD: 2000, DecimalsPlaces: e18(1)},
		{Asset: dai, AccruedCollateral: e18(20_000), EffectiveCollateralUSD: 20_000, PriceUSD: 1, DecimalsPlaces: e18(1)},
		{Asset: usdc, AccruedDebt: e18(15_000), EffectiveDebtUSD: 15_000, PriceUSD: 1, DecimalsPlaces: e18(1)},
	}
	cfgs := map[common.Address]protoconfig.AssetConfig{
		weth: {LiquidationBonusBps: 11_000}, // higher raw profit
		dai:  {LiquidationBonusBps: 10_200}, // lower raw profit, but prioritized
	}

	e := newEngine([]health.HealthPosition{pos}, nil, cfgs, paths)
	e.cfg.PriorityCollateral = []common.Address{dai}

	ranked := e.rankForDebt(pos, false, []health.AssetContribution{pos.Assets[0], pos.Assets[1]}, pos.Assets[2])
	require.Len(t, ranked, 2)
	require.Equal(t, dai, ranked[0].CollateralAsset)
}
