package pipeline

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"solvkeep/core/balances"
	"solvkeep/core/events"
	"solvkeep/core/health"
	"solvkeep/core/liquidity"
	"solvkeep/core/oracle"
	"solvkeep/core/protoconfig"
	"solvkeep/core/ray"
)

type nopReader struct{}

func (nopReader) CallUint256(ctx context.Context, contract common.Address, selector string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func newDispatcherForTest() *Dispatcher {
	liq := liquidity.New()
	bal := balances.New(liq)
	cfg := protoconfig.New()
	composer := oracle.New(nopReader{}, oracle.NewGrowthTracker(7*24*time.Hour))
	hsvc := health.New(bal, liq, cfg, composer)
	return &Dispatcher{Balances: bal, Liquidity: liq, Config: cfg, Composer: composer, Health: hsvc}
}

func TestDispatcherRoutesMintToBalances(t *testing.T) {
	d := newDispatcherForTest()
	asset := common.HexToAddress("0xa5e7")
	user := common.HexToAddress("0xb0b0")

	ev := events.LogEvent{
		Kind: events.Mint,
		Key:  events.OrderingKey{Block: 1},
		Payload: events.MintPayload{
			Asset:           asset,
			OnBehalfOf:      user,
			Side:            events.Collateral,
			Value:           big.NewInt(1000),
			BalanceIncrease: big.NewInt(0),
			Index:           ray.RAY, // index 1.0, so the scaled balance equals the value
		},
	}
	require.NoError(t, d.Apply(ev))
	require.Equal(t, big.NewInt(1000).String(), d.Balances.Scaled(user, asset, events.Collateral).String())
}

func TestDispatcherRoutesReserveDataUpdatedToLiquidity(t *testing.T) {
	d := newDispatcherForTest()
	asset := common.HexToAddress("0xa5e7")

	ev := events.LogEvent{
		Kind: events.ReserveDataUpdated,
		Key:  events.OrderingKey{Block: 5},
		Payload: events.ReserveDataUpdatedPayload{
			Asset:               asset,
			LiquidityIndex:      big.NewInt(2),
			VariableBorrowIndex: big.NewInt(3),
			VariableBorrowRate:  big.NewInt(4),
		},
	}
	require.NoError(t, d.Apply(ev))
	snap, ok := d.Liquidity.Get(asset)
	require.True(t, ok)
	require.Equal(t, big.NewInt(2).String(), snap.CollateralLiquidityIndex.String())
}

func TestDispatcherRoutesUserEModeSetToHealth(t *testing.T) {
	d := newDispatcherForTest()
	user := common.HexToAddress("0xb0b0")

	ev := events.LogEvent{
		Kind:    events.UserEModeSet,
		Key:     events.OrderingKey{Block: 1},
		Payload: events.UserEModeSetPayload{User: user, CategoryID: 1},
	}
	require.NoError(t, d.Apply(ev))
	require.True(t, d.Health.UserEMode(user))
}

func TestDispatcherRejectsUnroutedKind(t *testing.T) {
	d := newDispatcherForTest()
	err := d.Apply(events.LogEvent{Kind: events.Kind("Unknown")})
	require.Error(t, err)
}
