// Package capadapter implements the two max-cap source shapes the Oracle
// Price Composer consults when a source's cap_type is not none
// (spec §4.5.4): a stable price cap, set directly by an event, and a
// dynamic price cap, whose bound grows over time from a snapshot.
package capadapter

import (
	"math/big"
	"time"

	"solvkeep/core/ray"
)

// SecondsPerYear is the constant the dynamic cap's annual-growth bound is
// measured against.
const SecondsPerYear = 365 * 24 * 60 * 60

// CapType mirrors the composer's cap_type enum.
type CapType int

const (
	CapNone CapType = iota
	CapPrice
	CapRatio
)

// Stable is the stable-price-cap source: PriceCapUpdated(priceCap) supplies
// max_cap directly, with cap_type = price_cap.
type Stable struct {
	PriceCap *big.Int
}

// MaxCap returns the current cap and its type.
func (s Stable) MaxCap(time.Time) (*big.Int, CapType) {
	return s.PriceCap, CapPrice
}

// Dynamic is the dynamic-price-cap source: CapParametersUpdated supplies a
// snapshot the cap grows from, bounded by the lesser of a linear and an
// annualized growth curve. The annualized bound scales the yearly growth
// percentage linearly by elapsed time; it is not compounded.
type Dynamic struct {
	SnapshotRatio               *big.Int
	SnapshotTimestamp           time.Time
	MaxRatioGrowthPerSecond     *big.Int
	MaxYearlyRatioGrowthPercent uint64
}

// MaxCap evaluates the dynamic cap as of now, with cap_type = ratio_cap.
func (d Dynamic) MaxCap(now time.Time) (*big.Int, CapType) {
	elapsed := int64(now.Sub(d.SnapshotTimestamp).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	linearCap := new(big.Int).Add(
		d.SnapshotRatio,
		new(big.Int).Mul(d.MaxRatioGrowthPerSecond, big.NewInt(elapsed)),
	)

	// annualCap = snapshotRatio * (1 + growthPercent*elapsed / (10_000*SECONDS_PER_YEAR))
	growthNumerator := new(big.Int).Mul(big.NewInt(int64(d.MaxYearlyRatioGrowthPercent)), big.NewInt(elapsed))
	growthDenominator := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(SecondsPerYear))
	scaledGrowth := new(big.Int).Mul(growthNumerator, ray.RAY)
	scaledGrowth.Quo(scaledGrowth, growthDenominator) // RAY-scaled fractional growth

	onePlusGrowth := new(big.Int).Add(ray.RAY, scaledGrowth)
	annualCap := new(big.Int).Mul(d.SnapshotRatio, onePlusGrowth)
	annualCap.Quo(annualCap, ray.RAY)

	if linearCap.Cmp(annualCap) < 0 {
		return linearCap, CapRatio
	}
	return annualCap, CapRatio
}

// Source is implemented by both Stable and Dynamic.
type Source interface {
	MaxCap(now time.Time) (*big.Int, CapType)
}
