// Package balances implements the Scaled Balance Aggregator: it folds
// Mint, Burn, BalanceTransfer, and collateral-toggle events into
// per-(user, asset, side) scaled balances (spec §4.3).
package balances

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/events"
	"solvkeep/core/liquidity"
	"solvkeep/core/ray"
)

// ErrIndexUnavailable is returned when a BalanceTransfer event omits its
// own index and no block-level index can be resolved for (asset, block).
// The caller is expected to defer the event and retry once the liquidity
// tracker has been provisioned (spec §4.3).
var ErrIndexUnavailable = errors.New("balances: index unavailable for block-level resolution")

// Key identifies one scaled balance row.
type Key struct {
	User  common.Address
	Asset common.Address
	Side  events.BalanceSide
}

type collateralKey struct {
	User  common.Address
	Asset common.Address
}

type collateralEntry struct {
	enabled bool
	version uint64
}

// Aggregator owns the scaled-balance and collateral-enabled state derived
// from the balance-affecting event kinds.
type Aggregator struct {
	liquidity *liquidity.Tracker

	mu                sync.RWMutex
	scaled            map[Key]*big.Int
	collateralEnabled map[collateralKey]collateralEntry
}

// New constructs an Aggregator backed by tracker for block-level index
// resolution.
func New(tracker *liquidity.Tracker) *Aggregator {
	return &Aggregator{
		liquidity:         tracker,
		scaled:            make(map[Key]*big.Int),
		collateralEnabled: make(map[collateralKey]collateralEntry),
	}
}

// Apply folds ev into the aggregator's state. Kinds outside this
// aggregator's scope are rejected with an error rather than silently
// ignored, so a miswired pipeline fails loudly.
func (a *Aggregator) Apply(ev events.LogEvent) error {
	switch ev.Kind {
	case events.Mint:
		return a.applyMint(ev)
	case events.Burn:
		return a.applyBurn(ev)
	case events.BalanceTransfer:
		return a.applyTransfer(ev)
	case events.ReserveUsedAsCollateralEnabled, events.ReserveUsedAsCollateralDisabled:
		return a.applyCollateralToggle(ev)
	default:
		return fmt.Errorf("balances: unsupported event kind %s", ev.Kind)
	}
}

func (a *Aggregator) applyMint(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.MintPayload)
	if !ok {
		return fmt.Errorf("balances: Mint payload has unexpected type %T", ev.Payload)
	}

	var amount *big.Int
	switch p.Side {
	case events.Collateral:
		amount = new(big.Int).Sub(p.Value, p.BalanceIncrease)
	case events.VariableDebt, events.StableDebt:
		amount = new(big.Int).Add(p.Value, p.BalanceIncrease)
	default:
		return fmt.Errorf("balances: unrecognized Mint side %q", p.Side)
	}

	delta, err := ray.ToScaled(amount, p.Index)
	if err != nil {
		return fmt.Errorf("balances: scale Mint amount: %w", err)
	}
	a.addDelta(Key{User: p.OnBehalfOf, Asset: p.Asset, Side: p.Side}, delta)
	a.liquidity.ObserveInlineIndex(p.Asset, ev.Key.Block, p.Side == events.Collateral, p.Index)
	return nil
}

func (a *Aggregator) applyBurn(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.BurnPayload)
	if !ok {
		return fmt.Errorf("balances: Burn payload has unexpected type %T", ev.Payload)
	}

	amount := new(big.Int).Add(p.Value, p.BalanceIncrease)
	delta, err := ray.ToScaled(amount, p.Index)
	if err != nil {
		return fmt.Errorf("balances: scale Burn amount: %w", err)
	}
	delta.Neg(delta)
	a.addDelta(Key{User: p.From, Asset: p.Asset, Side: p.Side}, delta)
	a.liquidity.ObserveInlineIndex(p.Asset, ev.Key.Block, p.Side == events.Collateral, p.Index)
	return nil
}

func (a *Aggregator) applyTransfer(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.BalanceTransferPayload)
	if !ok {
		return fmt.Errorf("balances: BalanceTransfer payload has unexpected type %T", ev.Payload)
	}

	index := p.Index
	if index == nil {
		snap, ok := a.liquidity.GetBlockLevel(p.Asset, ev.Key.Block)
		if !ok {
			return ErrIndexUnavailable
		}
		if p.Side == events.Collateral {
			index = snap.CollateralLiquidityIndex
		} else {
			index = snap.VariableDebtLiquidityIndex
		}
		if index == nil {
			return ErrIndexUnavailable
		}
	}

	delta, err := ray.ToScaled(p.Value, index)
	if err != nil {
		return fmt.Errorf("balances: scale BalanceTransfer amount: %w", err)
	}

	neg := new(big.Int).Neg(delta)
	a.addDelta(Key{User: p.From, Asset: p.Asset, Side: p.Side}, neg)
	a.addDelta(Key{User: p.To, Asset: p.Asset, Side: p.Side}, delta)
	return nil
}

func (a *Aggregator) applyCollateralToggle(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.CollateralToggledPayload)
	if !ok {
		return fmt.Errorf("balances: CollateralToggled payload has unexpected type %T", ev.Payload)
	}

	key := collateralKey{User: p.User, Asset: p.Asset}
	version := ev.Version()

	a.mu.Lock()
	defer a.mu.Unlock()
	if current, ok := a.collateralEnabled[key]; ok && current.version > version {
		return nil // a newer version already won this race
	}
	a.collateralEnabled[key] = collateralEntry{enabled: p.Enabled, version: version}
	return nil
}

func (a *Aggregator) addDelta(key Key, delta *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	current, ok := a.scaled[key]
	if !ok {
		a.scaled[key] = new(big.Int).Set(delta)
		return
	}
	current.Add(current, delta)
}

// Scaled returns the current scaled balance for (user, asset, side), or
// zero if no deltas have been applied yet.
func (a *Aggregator) Scaled(user, asset common.Address, side events.BalanceSide) *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.scaled[Key{User: user, Asset: asset, Side: side}]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Users returns every distinct user address with at least one recorded
// balance delta. Used by the Health-Factor Evaluator's scan operation to
// enumerate candidates without a separate user registry.
func (a *Aggregator) Users() []common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := make(map[common.Address]struct{})
	for key := range a.scaled {
		seen[key.User] = struct{}{}
	}
	users := make([]common.Address, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	return users
}

// Assets returns every distinct asset address user has a recorded balance
// delta against, across all sides.
func (a *Aggregator) Assets(user common.Address) []common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := make(map[common.Address]struct{})
	for key := range a.scaled {
		if key.User == user {
			seen[key.Asset] = struct{}{}
		}
	}
	assets := make([]common.Address, 0, len(seen))
	for a := range seen {
		assets = append(assets, a)
	}
	return assets
}

// CollateralEnabled reports whether (user, asset) is currently flagged as
// collateral-enabled, and whether any toggle event has been observed.
func (a *Aggregator) CollateralEnabled(user, asset common.Address) (enabled bool, known bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.collateralEnabled[collateralKey{User: user, Asset: asset}]
	if !ok {
		return false, false
	}
	return e.enabled, true
}
