// Package liquidity implements the Liquidity Index Tracker: the
// single source of truth for each asset's current collateral and
// variable-debt liquidity indices, and the per-block snapshots the Scaled
// Balance Aggregator consults when a BalanceTransfer event omits its own
// index.
package liquidity

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// IndexSnapshot is the current view of an asset's indices and interest
// rate, stamped with the version of the event that produced it.
type IndexSnapshot struct {
	CollateralLiquidityIndex   *big.Int
	VariableDebtLiquidityIndex *big.Int
	LiquidityRate              *big.Int
	VariableBorrowRate         *big.Int
	BlockNumber                uint64
	Version                    uint64
}

// Clone returns a deep copy so callers can't mutate tracker-owned state
// through a returned snapshot.
func (s IndexSnapshot) Clone() IndexSnapshot {
	clone := s
	if s.CollateralLiquidityIndex != nil {
		clone.CollateralLiquidityIndex = new(big.Int).Set(s.CollateralLiquidityIndex)
	}
	if s.VariableDebtLiquidityIndex != nil {
		clone.VariableDebtLiquidityIndex = new(big.Int).Set(s.VariableDebtLiquidityIndex)
	}
	if s.LiquidityRate != nil {
		clone.LiquidityRate = new(big.Int).Set(s.LiquidityRate)
	}
	if s.VariableBorrowRate != nil {
		clone.VariableBorrowRate = new(big.Int).Set(s.VariableBorrowRate)
	}
	return clone
}

// Tracker publishes, per asset, the maximum-seen indices and the interest
// rate/block number of the latest ReserveDataUpdated event by version
// (spec §4.4). It also remembers a per-block view so the balance
// aggregator can resolve BalanceTransfer events whose payload omits an
// inline index.
type Tracker struct {
	mu         sync.RWMutex
	latest     map[common.Address]IndexSnapshot
	blockLevel map[common.Address]map[uint64]IndexSnapshot
}

// New constructs an empty Liquidity Index Tracker.
func New() *Tracker {
	return &Tracker{
		latest:     make(map[common.Address]IndexSnapshot),
		blockLevel: make(map[common.Address]map[uint64]IndexSnapshot),
	}
}

// ApplyReserveDataUpdated folds a ReserveDataUpdated event into the
// tracker. The published indices are the maximum seen across every update,
// so they stay monotonically non-decreasing even when events land out of
// version order; the rates and block number follow the highest version
// only. The per-block entry likewise records the maximum index seen at
// that block, since a block can carry more than one update.
func (t *Tracker) ApplyReserveDataUpdated(asset common.Address, block, version uint64, collateralIndex, variableDebtIndex, liquidityRate, variableBorrowRate *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := IndexSnapshot{
		CollateralLiquidityIndex:   collateralIndex,
		VariableDebtLiquidityIndex: variableDebtIndex,
		LiquidityRate:              liquidityRate,
		VariableBorrowRate:         variableBorrowRate,
		BlockNumber:                block,
		Version:                    version,
	}
	t.mergeBlockLevel(asset, snap)

	current, ok := t.latest[asset]
	if !ok {
		t.latest[asset] = snap
		return
	}
	merged := current
	if version > current.Version {
		merged = snap
	}
	merged.CollateralLiquidityIndex = maxBig(snap.CollateralLiquidityIndex, current.CollateralLiquidityIndex)
	merged.VariableDebtLiquidityIndex = maxBig(snap.VariableDebtLiquidityIndex, current.VariableDebtLiquidityIndex)
	t.latest[asset] = merged
}

// ObserveInlineIndex folds the index carried inline by a Mint/Burn event
// into the per-block view, independent of ReserveDataUpdated. This lets a
// BalanceTransfer that arrives before any ReserveDataUpdated at its block
// still resolve an index from a sibling Mint/Burn at the same block.
func (t *Tracker) ObserveInlineIndex(asset common.Address, block uint64, isCollateral bool, index *big.Int) {
	if index == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := IndexSnapshot{BlockNumber: block}
	if isCollateral {
		snap.CollateralLiquidityIndex = index
	} else {
		snap.VariableDebtLiquidityIndex = index
	}
	t.mergeBlockLevel(asset, snap)
}

// mergeBlockLevel combines snap into the recorded maximum for (asset,
// snap.BlockNumber), taking the higher index on each side independently.
// Caller must hold t.mu.
func (t *Tracker) mergeBlockLevel(asset common.Address, snap IndexSnapshot) {
	byBlock, ok := t.blockLevel[asset]
	if !ok {
		byBlock = make(map[uint64]IndexSnapshot)
		t.blockLevel[asset] = byBlock
	}
	existing, ok := byBlock[snap.BlockNumber]
	if !ok {
		byBlock[snap.BlockNumber] = snap
		return
	}
	merged := existing
	if maxBig(snap.CollateralLiquidityIndex, existing.CollateralLiquidityIndex) == snap.CollateralLiquidityIndex && snap.CollateralLiquidityIndex != nil {
		merged.CollateralLiquidityIndex = snap.CollateralLiquidityIndex
	}
	if maxBig(snap.VariableDebtLiquidityIndex, existing.VariableDebtLiquidityIndex) == snap.VariableDebtLiquidityIndex && snap.VariableDebtLiquidityIndex != nil {
		merged.VariableDebtLiquidityIndex = snap.VariableDebtLiquidityIndex
	}
	if snap.LiquidityRate != nil {
		merged.LiquidityRate = snap.LiquidityRate
	}
	if snap.VariableBorrowRate != nil {
		merged.VariableBorrowRate = snap.VariableBorrowRate
	}
	if snap.Version > existing.Version {
		merged.Version = snap.Version
	}
	byBlock[snap.BlockNumber] = merged
}

// maxBig returns whichever of a, b is larger, treating nil as the smaller
// value; if both are nil it returns nil.
func maxBig(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Get returns the latest published snapshot for asset.
func (t *Tracker) Get(asset common.Address) (IndexSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.latest[asset]
	if !ok {
		return IndexSnapshot{}, false
	}
	return s.Clone(), true
}

// GetBlockLevel returns the snapshot recorded for (asset, block), used by
// the balance aggregator when a BalanceTransfer event omits its own index
// (spec §4.3, §4.4).
func (t *Tracker) GetBlockLevel(asset common.Address, block uint64) (IndexSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	byBlock, ok := t.blockLevel[asset]
	if !ok {
		return IndexSnapshot{}, false
	}
	s, ok := byBlock[block]
	if !ok {
		return IndexSnapshot{}, false
	}
	return s.Clone(), true
}
