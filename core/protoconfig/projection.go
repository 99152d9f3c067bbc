// Package protoconfig implements the Configuration Projection: it folds
// configuration-event kinds into per-asset AssetConfig rows, one field per
// event kind, each independently stamped with the producing event's
// version so last-writer-wins resolves correctly even though
// configuration streams carry no cross-stream ordering guarantee
// (spec §4.6, §5).
package protoconfig

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/events"
)

// field names used as last-writer-wins keys within a single asset row.
const (
	fieldReserve  = "reserve"
	fieldCollCfg  = "collateral_configuration"
	fieldEModeCat = "emode_category"
	fieldSource   = "source"
)

// EModeCategory is a category definition from EModeCategoryAdded.
type EModeCategory struct {
	LTVBps                  uint16
	LiquidationThresholdBps uint16
	LiquidationBonusBps     uint16
	Label                   string
}

// AssetConfig is the denormalized, current-as-of-latest-version
// configuration row for one asset.
type AssetConfig struct {
	Asset                common.Address
	AToken               common.Address
	VariableDebtToken    common.Address
	InterestRateStrategy common.Address
	Source               common.Address

	LTVBps                  uint16
	LiquidationThresholdBps uint16
	LiquidationBonusBps     uint16

	// Decimals is the token's own decimal scale (e.g. 1e18 for most
	// ERC-20s), used to convert a raw accrued balance into whole-token
	// units for the health-factor USD computation. No event in the closed
	// event-kind set carries it; it is provisioned directly via
	// SetDecimals. An asset with Decimals == nil is treated as
	// unconfigured and excluded from evaluation (spec §7).
	Decimals *big.Int

	EModeCategoryID              uint8
	HasEMode                     bool
	EModeLTVBps                  uint16
	EModeLiquidationThresholdBps uint16
	EModeLiquidationBonusBps     uint16
}

// Clone returns a deep copy so callers can't mutate projection-owned state
// through the Decimals pointer.
func (c AssetConfig) Clone() AssetConfig {
	clone := c
	if c.Decimals != nil {
		clone.Decimals = new(big.Int).Set(c.Decimals)
	}
	return clone
}

// SetDecimals provisions asset's token decimal scale. Unlike every other
// AssetConfig field, decimals have no corresponding event in the closed
// event-kind set; they are supplied directly from static configuration.
func (p *Projection) SetDecimals(asset common.Address, decimals *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.row(asset).cfg.Decimals = decimals
}

type assetRow struct {
	cfg      AssetConfig
	versions map[string]uint64
}

// Projection owns every asset's configuration row plus the e-mode category
// table, and keeps the two in sync: a category redefinition recomputes the
// denormalized e-mode fields of every asset currently bound to it.
type Projection struct {
	mu         sync.RWMutex
	assets     map[common.Address]*assetRow
	categories map[uint8]EModeCategory
	catVersion map[uint8]uint64
	byCategory map[uint8]map[common.Address]struct{}
}

// New constructs an empty Configuration Projection.
func New() *Projection {
	return &Projection{
		assets:     make(map[common.Address]*assetRow),
		categories: make(map[uint8]EModeCategory),
		catVersion: make(map[uint8]uint64),
		byCategory: make(map[uint8]map[common.Address]struct{}),
	}
}

func (p *Projection) row(asset common.Address) *assetRow {
	r, ok := p.assets[asset]
	if !ok {
		r = &assetRow{cfg: AssetConfig{Asset: asset}, versions: make(map[string]uint64)}
		p.assets[asset] = r
	}
	return r
}

// wins reports whether version supersedes the last-applied version for
// field on row, recording the new version if so. Caller must hold p.mu.
func (r *assetRow) wins(field string, version uint64) bool {
	if current, ok := r.versions[field]; ok && version <= current {
		return false
	}
	r.versions[field] = version
	return true
}

// Apply folds a single configuration event into the projection.
func (p *Projection) Apply(ev events.LogEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	version := ev.Version()
	switch ev.Kind {
	case events.ReserveInitialized:
		pl := ev.Payload.(events.ReserveInitializedPayload)
		row := p.row(pl.Asset)
		if row.wins(fieldReserve, version) {
			row.cfg.AToken = pl.AToken
			row.cfg.VariableDebtToken = pl.VariableDebtToken
			row.cfg.InterestRateStrategy = pl.InterestRateStrategy
		}
	case events.CollateralConfigurationChanged:
		pl := ev.Payload.(events.CollateralConfigurationChangedPayload)
		row := p.row(pl.Asset)
		if row.wins(fieldCollCfg, version) {
			row.cfg.LTVBps = pl.LTVBps
			row.cfg.LiquidationThresholdBps = pl.LiquidationThresholdBps
			row.cfg.LiquidationBonusBps = pl.LiquidationBonusBps
		}
	case events.AssetSourceUpdated:
		pl := ev.Payload.(events.AssetSourceUpdatedPayload)
		row := p.row(pl.Asset)
		if row.wins(fieldSource, version) {
			row.cfg.Source = pl.Source
		}
	case events.EModeAssetCategoryChanged:
		pl := ev.Payload.(events.EModeAssetCategoryChangedPayload)
		row := p.row(pl.Asset)
		if row.wins(fieldEModeCat, version) {
			p.unlinkCategory(pl.Asset)
			row.cfg.EModeCategoryID = pl.CategoryID
			p.linkCategory(pl.CategoryID, pl.Asset)
			p.denormalizeLocked(pl.Asset)
		}
	case events.EModeCategoryAdded:
		pl := ev.Payload.(events.EModeCategoryAddedPayload)
		if current, ok := p.catVersion[pl.CategoryID]; ok && version <= current {
			return nil
		}
		p.catVersion[pl.CategoryID] = version
		p.categories[pl.CategoryID] = EModeCategory{
			LTVBps:                  pl.LTVBps,
			LiquidationThresholdBps: pl.LiquidationThresholdBps,
			LiquidationBonusBps:     pl.LiquidationBonusBps,
			Label:                   pl.Label,
		}
		for asset := range p.byCategory[pl.CategoryID] {
			p.denormalizeLocked(asset)
		}
	}
	return nil
}

func (p *Projection) unlinkCategory(asset common.Address) {
	row, ok := p.assets[asset]
	if !ok || !row.cfg.HasEMode {
		return
	}
	if set, ok := p.byCategory[row.cfg.EModeCategoryID]; ok {
		delete(set, asset)
	}
}

func (p *Projection) linkCategory(categoryID uint8, asset common.Address) {
	set, ok := p.byCategory[categoryID]
	if !ok {
		set = make(map[common.Address]struct{})
		p.byCategory[categoryID] = set
	}
	set[asset] = struct{}{}
}

// denormalizeLocked recomputes asset's denormalized e-mode fields from the
// current category table. Caller must hold p.mu.
func (p *Projection) denormalizeLocked(asset common.Address) {
	row, ok := p.assets[asset]
	if !ok {
		return
	}
	cat, ok := p.categories[row.cfg.EModeCategoryID]
	if !ok {
		row.cfg.HasEMode = false
		return
	}
	row.cfg.HasEMode = true
	row.cfg.EModeLTVBps = cat.LTVBps
	row.cfg.EModeLiquidationThresholdBps = cat.LiquidationThresholdBps
	row.cfg.EModeLiquidationBonusBps = cat.LiquidationBonusBps
}

// Get returns the current configuration for asset.
func (p *Projection) Get(asset common.Address) (AssetConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	row, ok := p.assets[asset]
	if !ok {
		return AssetConfig{}, false
	}
	return row.cfg.Clone(), true
}
