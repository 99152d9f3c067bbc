package oracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"solvkeep/core/events"
	"solvkeep/core/oracle/adapter"
	"solvkeep/core/ray"
)

var (
	asset = common.HexToAddress("0xa5")
	feed  = common.HexToAddress("0xfeed")
)

func newComposerWithConstantMultiplier() *Composer {
	c := New(nil, NewGrowthTracker(7*24*time.Hour))
	c.RegisterSource(SourceConfig{
		Address:        feed,
		MultiplierKind: adapter.ConstantOne,
		DecimalsPlaces: big.NewInt(100_000_000), // 1e8, Chainlink-style
	})
	c.BindAsset(asset, feed)
	return c
}

func TestHistoricalEventPriceWithoutCap(t *testing.T) {
	c := newComposerWithConstantMultiplier()
	require.NoError(t, c.ApplyNewTransmission(events.LogEvent{
		Kind: events.NewTransmission,
		Key:  events.OrderingKey{Block: 10},
		Payload: events.NewTransmissionPayload{Source: feed, Answer: big.NewInt(200_000_000_000)}, // 2000 * 1e8, in the feed's 8-decimal units
	}))

	got, err := c.HistoricalEventPrice(context.Background(), asset, 10, time.Unix(1000, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(10), got.BlockNumber)
	require.Greater(t, got.PriceUSD, 0.0)
}

func TestHistoricalEventPriceRespectsPriceCap(t *testing.T) {
	c := New(nil, NewGrowthTracker(7*24*time.Hour))
	c.RegisterSource(SourceConfig{
		Address:        feed,
		MultiplierKind: adapter.ConstantOne,
		DecimalsPlaces: big.NewInt(1),
		HasCap:         true,
	})
	c.BindAsset(asset, feed)

	require.NoError(t, c.ApplyNewTransmission(events.LogEvent{
		Kind: events.NewTransmission, Key: events.OrderingKey{Block: 1},
		Payload: events.NewTransmissionPayload{Source: feed, Answer: new(big.Int).Mul(ray.RAY, big.NewInt(100))},
	}))
	require.NoError(t, c.ApplyPriceCapUpdated(events.LogEvent{
		Kind: events.PriceCapUpdated, Key: events.OrderingKey{Block: 1},
		Payload: events.PriceCapUpdatedPayload{Source: feed, PriceCap: new(big.Int).Mul(ray.RAY, big.NewInt(50))},
	}))

	got, err := c.HistoricalEventPrice(context.Background(), asset, 1, time.Unix(1, 0))
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(ray.RAY, big.NewInt(50)).String(), got.PriceRay.String(), "price must be clamped to the stable price cap")
}

func TestHistoricalTransactionPriceUsesTxNumeratorAndEventRest(t *testing.T) {
	c := newComposerWithConstantMultiplier()
	require.NoError(t, c.ApplyNewTransmission(events.LogEvent{
		Kind: events.NewTransmission, Key: events.OrderingKey{Block: 10},
		Payload: events.NewTransmissionPayload{Source: feed, Answer: big.NewInt(200_000_000_000)},
	}))
	c.ApplyPendingNumerator(feed, big.NewInt(210_000_000_000), 11_000_000_000)

	got, err := c.HistoricalTransactionPrice(context.Background(), asset, 10, time.Unix(1000, 0))
	require.NoError(t, err)
	require.Greater(t, got.PriceUSD, 0.0)
	require.Equal(t, uint64(11_000_000_000), got.NumeratorVersion)
}

func TestLeafSourcesResolvesDenominatorChain(t *testing.T) {
	c := New(nil, NewGrowthTracker(time.Hour))
	base := common.HexToAddress("0xbase")
	c.RegisterSource(SourceConfig{Address: base, MultiplierKind: adapter.ConstantOne, DecimalsPlaces: big.NewInt(1)})
	c.RegisterSource(SourceConfig{Address: feed, DenominatorSource: base, MultiplierKind: adapter.ConstantOne, DecimalsPlaces: big.NewInt(1)})
	c.BindAsset(asset, feed)

	leaves, err := c.LeafSources(asset)
	require.NoError(t, err)
	require.Contains(t, leaves, feed)
	require.Contains(t, leaves, base)
}

func TestLeafSourcesDetectsUnresolvedCycle(t *testing.T) {
	c := New(nil, NewGrowthTracker(time.Hour))
	a := common.HexToAddress("0xa")
	b := common.HexToAddress("0xb")
	c.RegisterSource(SourceConfig{Address: a, DenominatorSource: b, MultiplierKind: adapter.ConstantOne, DecimalsPlaces: big.NewInt(1)})
	c.RegisterSource(SourceConfig{Address: b, DenominatorSource: a, MultiplierKind: adapter.ConstantOne, DecimalsPlaces: big.NewInt(1)})
	c.BindAsset(asset, a)

	_, err := c.LeafSources(asset)
	require.ErrorIs(t, err, ErrUnresolvedSource)
}

func TestGrowthTrackerProjectsLinearTrend(t *testing.T) {
	g := NewGrowthTracker(7 * 24 * time.Hour)
	base := time.Unix(0, 0)
	g.Record(feed, base, big.NewInt(1_000_000_000_000_000_000))
	g.Record(feed, base.Add(10*time.Second), big.NewInt(1_000_000_000_000_000_100))

	slope, err := g.StdGrowthPerSec(feed)
	require.NoError(t, err)
	require.InDelta(t, 10.0, slope, 0.001)

	projected, err := g.ProjectMultiplier(feed, big.NewInt(1_000_000_000_000_000_100), 5)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000150", projected.String())
}
