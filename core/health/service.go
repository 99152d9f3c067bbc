package health

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/balances"
	"solvkeep/core/events"
	"solvkeep/core/liquidity"
	"solvkeep/core/oracle"
	"solvkeep/core/protoconfig"
)

// Service wires the Scaled Balance Aggregator, Liquidity Index Tracker,
// Configuration Projection, and Oracle Price Composer into the
// get_user/scan/predict_user operations spec §4.7 exposes. It also owns
// the user e-mode dictionary, which has no dedicated aggregator of its own
// in the spec.
type Service struct {
	balances  *balances.Aggregator
	liquidity *liquidity.Tracker
	config    *protoconfig.Projection
	composer  *oracle.Composer

	mu                      sync.RWMutex
	userEMode               map[common.Address]bool
	currentBlock            uint64
	currentTime             time.Time
	accrualProjectionFactor float64
}

// New constructs a Service over the given components.
func New(bal *balances.Aggregator, liq *liquidity.Tracker, cfg *protoconfig.Projection, composer *oracle.Composer) *Service {
	return &Service{
		balances:                bal,
		liquidity:               liq,
		config:                  cfg,
		composer:                composer,
		userEMode:               make(map[common.Address]bool),
		accrualProjectionFactor: 1,
	}
}

// SetAccrualProjectionFactor overrides the interest-accrual extrapolation
// factor used by every subsequent evaluation (spec §9, default 1).
func (s *Service) SetAccrualProjectionFactor(factor float64) {
	if factor == 0 {
		factor = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accrualProjectionFactor = factor
}

func (s *Service) projectionFactor() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accrualProjectionFactor
}

// ApplyUserEModeSet folds a UserEModeSet event into the user e-mode
// dictionary: category 1 is treated as "e-mode active" per spec §4.7's
// `user_emode == 1` check; category 0 means disabled.
func (s *Service) ApplyUserEModeSet(ev events.LogEvent) error {
	p := ev.Payload.(events.UserEModeSetPayload)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userEMode[p.User] = p.CategoryID == 1
	return nil
}

// SetCurrentBlock advances the block height and timestamp used as the
// accrual and pricing reference point for every subsequent evaluation.
func (s *Service) SetCurrentBlock(block uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentBlock = block
	s.currentTime = at
}

// UserEMode reports whether addr currently has e-mode active.
func (s *Service) UserEMode(addr common.Address) bool {
	return s.emodeFor(addr)
}

func (s *Service) emodeFor(user common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userEMode[user]
}

func (s *Service) blockAndTime() (uint64, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentBlock, s.currentTime
}

// buildAssetInputs assembles the per-asset rows for user across every
// asset the balance aggregator has seen them touch.
func (s *Service) buildAssetInputs(user common.Address, overrides map[common.Address]float64) []AssetInput {
	block, blockTime := s.blockAndTime()
	userEMode := s.emodeFor(user)
	assets := s.balances.Assets(user)

	inputs := make([]AssetInput, 0, len(assets))
	for _, asset := range assets {
		cfg, ok := s.config.Get(asset)
		if !ok || cfg.Decimals == nil {
			continue // unconfigured asset: degraded per spec §7, excluded rather than guessed at
		}

		collateralScaled := s.balances.Scaled(user, asset, events.Collateral)
		debtScaled := s.balances.Scaled(user, asset, events.VariableDebt)
		if collateralScaled.Sign() == 0 && debtScaled.Sign() == 0 {
			continue
		}

		indexSnap, hasIndex := s.liquidity.Get(asset)
		if !hasIndex {
			continue
		}

		enabled, _ := s.balances.CollateralEnabled(user, asset)

		priceUSD, overridden := overrides[asset]
		if !overridden {
			price, err := s.composer.HistoricalEventPrice(context.Background(), asset, block, blockTime)
			if err != nil {
				continue // price unavailable: asset degraded for this evaluation, not a hard failure
			}
			priceUSD = price.PriceUSD
		}

		inputs = append(inputs, AssetInput{
			Asset:                             asset,
			CollateralScaled:                  collateralScaled,
			VariableDebtScaled:                debtScaled,
			CollateralIndex:                   indexSnap.CollateralLiquidityIndex,
			VariableDebtIndex:                 indexSnap.VariableDebtLiquidityIndex,
			InterestRateCollateral:            indexSnap.LiquidityRate,
			InterestRateDebt:                  indexSnap.VariableBorrowRate,
			IndexBlock:                        indexSnap.BlockNumber,
			CurrentBlock:                      block,
			PriceUSD:                          priceUSD,
			DecimalsPlaces:                    cfg.Decimals,
			CollateralEnabled:                 enabled,
			UserEMode:                         userEMode,
			CollateralLTVBps:                  cfg.LTVBps,
			CollateralLiquidationThresholdBps: cfg.LiquidationThresholdBps,
			EModeLiquidationThresholdBps:      cfg.EModeLiquidationThresholdBps,
			AccrualProjectionFactor:           s.projectionFactor(),
		})
	}
	return inputs
}

// GetUser evaluates the current HealthPosition for addr.
func (s *Service) GetUser(addr common.Address) HealthPosition {
	return Evaluate(addr, s.buildAssetInputs(addr, nil))
}

// PredictUser evaluates addr's HealthPosition substituting assetOverrides'
// USD prices in place of the event-latest oracle price, for assets present
// in the map.
func (s *Service) PredictUser(addr common.Address, assetOverrides map[common.Address]float64) HealthPosition {
	return Evaluate(addr, s.buildAssetInputs(addr, assetOverrides))
}

// Scan evaluates every known user and returns those for which filter
// returns true.
func (s *Service) Scan(filter func(HealthPosition) bool) []HealthPosition {
	var out []HealthPosition
	for _, user := range s.balances.Users() {
		pos := s.GetUser(user)
		if filter == nil || filter(pos) {
			out = append(out, pos)
		}
	}
	return out
}
