package adapter

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"solvkeep/core/ray"
)

type fakeReader struct {
	values map[string]*big.Int
}

func (f fakeReader) CallUint256(_ context.Context, contract common.Address, selector string) (*big.Int, error) {
	v, ok := f.values[contract.Hex()+selector]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return v, nil
}

func TestConstantOneAdapter(t *testing.T) {
	a, err := Resolve(ConstantOne, nil, Params{})
	require.NoError(t, err)
	v, err := a.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, ray.RAY.String(), v.String())
}

func TestLiquidStakingRatioAdapter(t *testing.T) {
	token := common.HexToAddress("0x1")
	reader := fakeReader{values: map[string]*big.Int{
		token.Hex() + "getExchangeRate()": big.NewInt(1_150_000_000_000_000_000),
	}}
	a, err := Resolve(LiquidStakingRatio, reader, Params{Contract: token})
	require.NoError(t, err)
	v, err := a.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1150000000000000000", v.String())
}

func TestSynchronicityPriceAdapter(t *testing.T) {
	feedA := common.HexToAddress("0xa")
	feedB := common.HexToAddress("0xb")
	reader := fakeReader{values: map[string]*big.Int{
		feedA.Hex() + "latestAnswer()": new(big.Int).Mul(ray.RAY, big.NewInt(2)),
		feedB.Hex() + "latestAnswer()": ray.RAY,
	}}
	a, err := Resolve(SynchronicityPriceAdapter, reader, Params{FeedA: feedA, FeedB: feedB})
	require.NoError(t, err)
	v, err := a.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(ray.RAY, big.NewInt(2)).String(), v.String())
}

func TestPendleDiscountAdapterAtMaturityIsOne(t *testing.T) {
	fixedNow := time.Unix(1_700_000_000, 0)
	a, err := Resolve(PendleDiscount, nil, Params{
		RatePerSecondRay: big.NewInt(1), // negligible rate
		Maturity:         fixedNow,      // t = 0
		Now:              func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	v, err := a.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, ray.RAY.String(), v.String())
}

func TestGenericRatioProviderAdapter(t *testing.T) {
	contract := common.HexToAddress("0xc")
	reader := fakeReader{values: map[string]*big.Int{
		contract.Hex() + "ratio()": big.NewInt(950_000_000_000_000_000),
	}}
	a, err := Resolve(GenericRatioProvider, reader, Params{Contract: contract})
	require.NoError(t, err)
	v, err := a.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, "950000000000000000", v.String())
}

func TestResolveUnknownKind(t *testing.T) {
	_, err := Resolve(Kind("bogus"), nil, Params{})
	require.ErrorIs(t, err, ErrUnknownKind)
}
