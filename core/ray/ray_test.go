package ray

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func big27(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad constant " + s)
	}
	return v
}

func TestToScaledAndBack(t *testing.T) {
	underlying := big.NewInt(1000)
	underlying.Mul(underlying, big.NewInt(1_000_000_000_000_000_000)) // 1000e18
	index := big27("1100000000000000000000000000")                    // 1.1 RAY

	scaled, err := ToScaled(underlying, RAY)
	require.NoError(t, err)
	require.Equal(t, underlying.String(), scaled.String(), "scaling by the identity index is a no-op")

	accrued, err := ToUnderlying(scaled, index)
	require.NoError(t, err)
	// scaled == underlying at RAY index, so accruing to 1.1 RAY scales it by 1.1.
	want := new(big.Int).Mul(underlying, big.NewInt(11))
	want.Quo(want, big.NewInt(10))
	require.Equal(t, want.String(), accrued.String())
}

// Property 5 (spec §8): to_underlying(to_scaled(x, idx), idx) <= x, with
// equality when x*RAY is exactly divisible by idx.
func TestRoundTripNeverExceedsOriginal(t *testing.T) {
	cases := []struct {
		x, idx *big.Int
	}{
		{big.NewInt(12345), RAY},
		{big.NewInt(999_999_999), big27("1234567890000000000000000000")},
		{big.NewInt(7), big27("3000000000000000000000000000")},
	}
	for _, c := range cases {
		scaled, err := ToScaled(c.x, c.idx)
		require.NoError(t, err)
		back, err := ToUnderlying(scaled, c.idx)
		require.NoError(t, err)
		require.LessOrEqual(t, back.Cmp(c.x), 0, "round trip must not exceed original for x=%s idx=%s", c.x, c.idx)
	}
}

func TestScenarioS1Accrual(t *testing.T) {
	// S1: Mint(Collateral, value=1000e18, balanceIncrease=0, index=1.0 RAY)
	// then ReserveDataUpdated sets index to 1.1 RAY; to_underlying = 1100e18.
	value := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1_000_000_000_000_000_000))
	scaled, err := ToScaled(value, RAY)
	require.NoError(t, err)
	require.Equal(t, value.String(), scaled.String())

	idx := big27("1100000000000000000000000000")
	underlying, err := ToUnderlying(scaled, idx)
	require.NoError(t, err)
	want := new(big.Int).Mul(big.NewInt(1100), big.NewInt(1_000_000_000_000_000_000))
	require.Equal(t, want.String(), underlying.String())
}

func TestRMulFloorAndCeilDiffer(t *testing.T) {
	a := big.NewInt(10)
	b := big27("3") // tiny, to force truncation against RAY scale
	floor, err := RMulFloor(a, b)
	require.NoError(t, err)
	ceil, err := RMulCeil(a, b)
	require.NoError(t, err)
	require.True(t, ceil.Cmp(floor) >= 0, "ceil must never round below floor")
	require.NotEqual(t, floor.String(), ceil.String(), "a truncated product must round differently")
}

func TestDivisionByZero(t *testing.T) {
	_, err := RDivFloor(big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrDivisionByZero)
	_, err = RDivCeil(big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 260)
	_, err := RMulFloor(huge, huge)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestMulBps(t *testing.T) {
	// S2: accrued_collateral * threshold_bps / 10_000 portion of the health
	// computation.
	value := big.NewInt(2)
	value.Mul(value, big.NewInt(1_000_000_000_000_000_000)) // 2e18
	out, err := MulBps(value, 8000)
	require.NoError(t, err)
	want := new(big.Int).Mul(value, big.NewInt(8000))
	want.Quo(want, big.NewInt(10_000))
	require.Equal(t, want.String(), out.String())
}

func TestFitsUint256(t *testing.T) {
	require.True(t, FitsUint256(big.NewInt(12345)))
	require.False(t, FitsUint256(big.NewInt(-1)))
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	require.False(t, FitsUint256(tooBig))
}
