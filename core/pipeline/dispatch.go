// Package pipeline folds decoded contract-log events into the aggregators
// that derive the pipeline's read models (spec §4.3-§4.7). It sits between
// the Synchronization Coordinator and the Event Log Store: every event the
// coordinator hands a Sink is first made durable, then routed here by kind.
package pipeline

import (
	"fmt"
	"math/big"

	"solvkeep/core/balances"
	"solvkeep/core/events"
	"solvkeep/core/health"
	"solvkeep/core/liquidity"
	"solvkeep/core/oracle"
	"solvkeep/core/protoconfig"
)

// Dispatcher routes a decoded event to the aggregator that owns its kind.
type Dispatcher struct {
	Balances  *balances.Aggregator
	Liquidity *liquidity.Tracker
	Config    *protoconfig.Projection
	Composer  *oracle.Composer
	Health    *health.Service

	// ObserveDispatched, when set, counts each successfully folded event by
	// kind. The daemon points this at its events_dispatched_total counter.
	ObserveDispatched func(kind string)
}

// Apply folds ev into whichever aggregator owns its kind. Unknown kinds are
// rejected rather than silently dropped, so a new event kind added to the
// decoder without a matching dispatch case fails loudly instead of vanishing.
func (d *Dispatcher) Apply(ev events.LogEvent) error {
	if err := d.route(ev); err != nil {
		return err
	}
	if d.ObserveDispatched != nil {
		d.ObserveDispatched(string(ev.Kind))
	}
	return nil
}

func (d *Dispatcher) route(ev events.LogEvent) error {
	switch ev.Kind {
	case events.Mint, events.Burn, events.BalanceTransfer,
		events.ReserveUsedAsCollateralEnabled, events.ReserveUsedAsCollateralDisabled:
		return d.Balances.Apply(ev)

	case events.ReserveDataUpdated:
		return d.applyReserveDataUpdated(ev)

	case events.ReserveInitialized, events.CollateralConfigurationChanged,
		events.EModeAssetCategoryChanged, events.EModeCategoryAdded:
		return d.Config.Apply(ev)

	case events.AssetSourceUpdated:
		// Both the configuration projection and the oracle composer track
		// the asset-to-source binding: the projection for the AssetConfig
		// view, the composer for price composition (spec §4.5.5, §4.6).
		if err := d.Config.Apply(ev); err != nil {
			return err
		}
		return d.Composer.ApplyAssetSourceUpdated(ev)

	case events.UserEModeSet:
		return d.Health.ApplyUserEModeSet(ev)

	case events.NewTransmission:
		return d.Composer.ApplyNewTransmission(ev)
	case events.AnswerUpdated:
		return d.Composer.ApplyAnswerUpdated(ev)
	case events.PriceCapUpdated:
		return d.Composer.ApplyPriceCapUpdated(ev)
	case events.CapParametersUpdated:
		return d.Composer.ApplyCapParametersUpdated(ev)

	default:
		return fmt.Errorf("pipeline: unrouted event kind %s", ev.Kind)
	}
}

func (d *Dispatcher) applyReserveDataUpdated(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.ReserveDataUpdatedPayload)
	if !ok {
		return fmt.Errorf("pipeline: ReserveDataUpdated payload has unexpected type %T", ev.Payload)
	}
	liquidityRate := p.LiquidityRate
	if liquidityRate == nil {
		liquidityRate = new(big.Int)
	}
	borrowRate := p.VariableBorrowRate
	if borrowRate == nil {
		borrowRate = new(big.Int)
	}
	d.Liquidity.ApplyReserveDataUpdated(p.Asset, ev.Key.Block, ev.Version(), p.LiquidityIndex, p.VariableBorrowIndex, liquidityRate, borrowRate)
	return nil
}
