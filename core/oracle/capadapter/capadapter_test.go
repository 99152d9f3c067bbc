package capadapter

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solvkeep/core/ray"
)

func TestStableMaxCap(t *testing.T) {
	s := Stable{PriceCap: big.NewInt(123)}
	cap, kind := s.MaxCap(time.Now())
	require.Equal(t, "123", cap.String())
	require.Equal(t, CapPrice, kind)
}

func TestDynamicMaxCapAtSnapshotEqualsSnapshot(t *testing.T) {
	snapshot := time.Unix(1_000, 0)
	d := Dynamic{
		SnapshotRatio:               new(big.Int).Set(ray.RAY),
		SnapshotTimestamp:           snapshot,
		MaxRatioGrowthPerSecond:     big.NewInt(0),
		MaxYearlyRatioGrowthPercent: 0,
	}
	cap, kind := d.MaxCap(snapshot)
	require.Equal(t, ray.RAY.String(), cap.String())
	require.Equal(t, CapRatio, kind)
}

func TestDynamicMaxCapAnnualBoundWinsOverFastLinearGrowth(t *testing.T) {
	snapshot := time.Unix(0, 0)
	hourLater := snapshot.Add(time.Hour)

	d := Dynamic{
		SnapshotRatio:               new(big.Int).Set(ray.RAY),
		SnapshotTimestamp:           snapshot,
		MaxRatioGrowthPerSecond:     new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil), // 1e20/s
		MaxYearlyRatioGrowthPercent: 1000,                                                  // 10% annual, in bps
	}
	cap, kind := d.MaxCap(hourLater)
	require.Equal(t, CapRatio, kind)

	// linearCap = 1e27 + 3600*1e20 = 1.00036e27; the annualized bound after
	// one hour is far tighter (~1.0000114e27) and must win.
	linear := new(big.Int).Add(ray.RAY, new(big.Int).Mul(big.NewInt(3600), new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil)))
	require.Negative(t, cap.Cmp(linear), "annual bound must undercut the linear bound")
	require.Positive(t, cap.Cmp(ray.RAY), "the cap still grows above the snapshot ratio")
}

func TestDynamicMaxCapPicksLesserOfLinearAndAnnual(t *testing.T) {
	snapshot := time.Unix(0, 0)
	later := snapshot.Add(365 * 24 * time.Hour) // exactly one year later

	d := Dynamic{
		SnapshotRatio:               new(big.Int).Set(ray.RAY),
		SnapshotTimestamp:           snapshot,
		MaxRatioGrowthPerSecond:     big.NewInt(0), // linear cap stays flat at snapshot
		MaxYearlyRatioGrowthPercent: 500,            // 5% annual growth
	}
	cap, _ := d.MaxCap(later)
	// linearCap = snapshotRatio (growth rate 0); annualCap = snapshotRatio*1.05 > linearCap.
	require.Equal(t, ray.RAY.String(), cap.String(), "the flat linear cap must win when it is lower")
}
