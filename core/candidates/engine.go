package candidates

import (
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/health"
	"solvkeep/core/protoconfig"
)

// AdmissionBand bounds the health factor range a user must fall in to be
// considered for liquidation (spec §4.8): `1.0 < health_factor ≤ high`.
type AdmissionBand struct {
	Low  float64
	High float64
}

// DefaultAdmissionBand matches spec §4.8's `(1.0, 1.25]`.
var DefaultAdmissionBand = AdmissionBand{Low: 1.0, High: 1.25}

// Config parameterizes the Engine beyond what the spec hardcodes, mirroring
// the `candidate_health_band`, `candidate_min_usd`, `close_factor`, and
// `priority_*` options spec §6 enumerates.
type Config struct {
	Band               AdmissionBand
	MinUSD             float64
	CloseFactor        float64
	WETH               common.Address
	PriorityCollateral []common.Address
	PriorityDebt       []common.Address
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig(weth common.Address) Config {
	return Config{
		Band:        DefaultAdmissionBand,
		MinUSD:      10_000,
		CloseFactor: 0.5,
		WETH:        weth,
	}
}

// LiquidationCandidate is one ranked, swap-path-resolved liquidation
// opportunity (spec §4.8's output contract).
type LiquidationCandidate struct {
	User                     common.Address
	CollateralAsset          common.Address
	DebtAsset                common.Address
	MaxDebtToCover           float64
	LiquidationBonusBps      uint16
	ProfitUSD                float64
	HealthFactor             float64
	CollateralBalanceAccrued *big.Int
	DebtBalanceAccrued       *big.Int
	CollateralToDebt         *SwapPath
	CollateralToWETH         *SwapPath
}

// healthSource is the slice of *health.Service the Engine depends on,
// narrowed so tests can supply a fake rather than wiring a full Service.
type healthSource interface {
	Scan(filter func(health.HealthPosition) bool) []health.HealthPosition
	UserEMode(addr common.Address) bool
}

// configSource is the slice of *protoconfig.Projection the Engine depends on.
type configSource interface {
	Get(asset common.Address) (protoconfig.AssetConfig, bool)
}

// Engine ranks admitted users' (collateral, debt) pairs into candidates,
// resolving swap paths and dropping unprofitable or unroutable pairs.
type Engine struct {
	health healthSource
	config configSource
	swaps  *SwapPathBook
	cfg    Config

	mu           sync.RWMutex
	latest       []LiquidationCandidate
	missingPaths map[swapKey]struct{}
}

// New constructs a Liquidation Candidate Engine.
func New(healthSvc *health.Service, cfg *protoconfig.Projection, swaps *SwapPathBook, engineCfg Config) *Engine {
	return &Engine{
		health:       healthSvc,
		config:       cfg,
		swaps:        swaps,
		cfg:          engineCfg,
		missingPaths: make(map[swapKey]struct{}),
	}
}

func (e *Engine) admitted(pos health.HealthPosition) bool {
	return pos.HealthFactor > e.cfg.Band.Low &&
		pos.HealthFactor <= e.cfg.Band.High &&
		pos.EffectiveCollateralUSD > e.cfg.MinUSD &&
		pos.EffectiveDebtUSD > e.cfg.MinUSD
}

// Scan evaluates every known user, builds candidates for those within the
// admission band, and returns the top-ranked candidate per (user, debt
// asset) with positive profit (spec §4.8). The result also replaces the
// engine's memory-resident candidate table, which the external submitter
// reads between scans.
func (e *Engine) Scan() []LiquidationCandidate {
	var out []LiquidationCandidate
	positions := e.health.Scan(e.admitted)
	for _, pos := range positions {
		out = append(out, e.candidatesFor(pos)...)
	}
	e.orderByPriorityDebt(out)
	e.mu.Lock()
	e.latest = out
	e.mu.Unlock()
	return out
}

// orderByPriorityDebt stable-sorts the final candidate list so rows whose
// debt asset appears in the configured priority set come first, in set
// order, with profit descending within a rank. Submitters drain the table
// top-down, so this is where the priority_debt_assets option bites.
func (e *Engine) orderByPriorityDebt(rows []LiquidationCandidate) {
	if len(e.cfg.PriorityDebt) == 0 {
		return
	}
	priority := make(map[common.Address]int, len(e.cfg.PriorityDebt))
	for i, asset := range e.cfg.PriorityDebt {
		priority[asset] = i
	}
	rank := func(asset common.Address) int {
		if r, ok := priority[asset]; ok {
			return r
		}
		return len(priority)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := rank(rows[i].DebtAsset), rank(rows[j].DebtAsset)
		if ri != rj {
			return ri < rj
		}
		return rows[i].ProfitUSD > rows[j].ProfitUSD
	})
}

// Latest returns the memory-resident candidate table produced by the most
// recent Scan. Only the newest scan's rows are retained: candidates are
// transient and recomputed every tick.
func (e *Engine) Latest() []LiquidationCandidate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]LiquidationCandidate(nil), e.latest...)
}

// MissingPaths returns every (token_in, token_out) pair a scan wanted a
// swap path for and could not resolve, so an operator can see which
// routes the path dictionary still needs.
func (e *Engine) MissingPaths() [][2]common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([][2]common.Address, 0, len(e.missingPaths))
	for k := range e.missingPaths {
		out = append(out, [2]common.Address{k.in, k.out})
	}
	return out
}

func (e *Engine) recordMissingPath(in, out common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.missingPaths == nil {
		e.missingPaths = make(map[swapKey]struct{})
	}
	e.missingPaths[swapKey{in, out}] = struct{}{}
}

func (e *Engine) candidatesFor(pos health.HealthPosition) []LiquidationCandidate {
	userEMode := e.health.UserEMode(pos.User)

	var collaterals, debts []health.AssetContribution
	for _, a := range pos.Assets {
		if a.EffectiveCollateralUSD > 0 {
			collaterals = append(collaterals, a)
		}
		if a.EffectiveDebtUSD > 0 {
			debts = append(debts, a)
		}
	}

	var out []LiquidationCandidate
	for _, d := range debts {
		ranked := e.rankForDebt(pos, userEMode, collaterals, d)
		if len(ranked) == 0 {
			continue
		}
		top := ranked[0]
		if top.ProfitUSD > 0 {
			out = append(out, top)
		}
	}
	return out
}

// rankForDebt builds and ranks every viable candidate for one debt asset
// against each eligible collateral asset, per spec §4.8's ranking rule: an
// optional stable priority-collateral pass followed by profit_usd descending.
func (e *Engine) rankForDebt(pos health.HealthPosition, userEMode bool, collaterals []health.AssetContribution, debt health.AssetContribution) []LiquidationCandidate {
	var candidates []LiquidationCandidate
	maxDebtToCover := debtFloat(debt.AccruedDebt) * e.cfg.CloseFactor

	for _, c := range collaterals {
		cfg, ok := e.config.Get(c.Asset)
		if !ok {
			continue
		}
		bonusBps := cfg.LiquidationBonusBps
		if userEMode && cfg.HasEMode {
			bonusBps = cfg.EModeLiquidationBonusBps
		}

		profitUSD := (float64(bonusBps)/10_000 - 1) * debtFloat(c.AccruedCollateral) * c.PriceUSD / decimalsFloat(c.DecimalsPlaces)

		collateralToDebt, collateralToWETH, routable := e.resolvePaths(c.Asset, debt.Asset)
		if !routable {
			continue
		}

		candidates = append(candidates, LiquidationCandidate{
			User:                     pos.User,
			CollateralAsset:          c.Asset,
			DebtAsset:                debt.Asset,
			MaxDebtToCover:           maxDebtToCover,
			LiquidationBonusBps:      bonusBps,
			ProfitUSD:                profitUSD,
			HealthFactor:             pos.HealthFactor,
			CollateralBalanceAccrued: c.AccruedCollateral,
			DebtBalanceAccrued:       debt.AccruedDebt,
			CollateralToDebt:         collateralToDebt,
			CollateralToWETH:         collateralToWETH,
		})
	}

	e.sortCandidates(candidates)
	return candidates
}

// resolvePaths resolves the two swap paths spec §4.8 requires per candidate.
// No path is needed when collateral and debt are the same asset.
func (e *Engine) resolvePaths(collateral, debt common.Address) (toDebt, toWETH *SwapPath, ok bool) {
	if collateral == debt {
		return nil, nil, true
	}
	debtPath, hasDebtPath := e.swaps.Lookup(collateral, debt)
	if !hasDebtPath {
		e.recordMissingPath(collateral, debt)
		return nil, nil, false
	}
	if collateral == e.cfg.WETH {
		return &debtPath, nil, true
	}
	wethPath, hasWETHPath := e.swaps.Lookup(collateral, e.cfg.WETH)
	if !hasWETHPath {
		e.recordMissingPath(collateral, e.cfg.WETH)
		return nil, nil, false
	}
	return &debtPath, &wethPath, true
}

// sortCandidates applies the optional priority-collateral stable pass
// followed by profit_usd descending.
func (e *Engine) sortCandidates(candidates []LiquidationCandidate) {
	priority := make(map[common.Address]int, len(e.cfg.PriorityCollateral))
	for i, asset := range e.cfg.PriorityCollateral {
		priority[asset] = i
	}
	rank := func(asset common.Address) int {
		if r, ok := priority[asset]; ok {
			return r
		}
		return len(priority)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rank(candidates[i].CollateralAsset), rank(candidates[j].CollateralAsset)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].ProfitUSD > candidates[j].ProfitUSD
	})
}

func debtFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func decimalsFloat(v *big.Int) float64 {
	if v == nil || v.Sign() == 0 {
		return 1
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
