package eventstore

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"solvkeep/core/events"
	"solvkeep/storage/columnar"
)

func mintEvent(block uint64, txIndex, logIndex uint32, value int64) events.LogEvent {
	return events.LogEvent{
		Kind:      events.Mint,
		Key:       events.OrderingKey{Block: block, TxIndex: txIndex, LogIndex: logIndex},
		Timestamp: time.Unix(int64(block), 0),
		TxHash:    common.BigToHash(big.NewInt(int64(block*1000 + uint64(txIndex)))),
		Contract:  common.HexToAddress("0xaaaa"),
		Payload: events.MintPayload{
			Asset:           common.HexToAddress("0xbeef"),
			OnBehalfOf:      common.HexToAddress("0xcafe"),
			Side:            events.Collateral,
			Value:           big.NewInt(value),
			BalanceIncrease: big.NewInt(0),
			Index:           big.NewInt(1),
		},
	}
}

func newTestStore() *Store {
	return New(columnar.NewInMemory(), 1)
}

func TestAppendAndRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	stream := mintEvent(1, 0, 0, 100).Stream(1)

	require.NoError(t, s.Append(ctx, mintEvent(1, 0, 0, 100)))
	require.NoError(t, s.Append(ctx, mintEvent(2, 0, 0, 200)))
	require.NoError(t, s.Append(ctx, mintEvent(3, 0, 0, 300)))

	got, err := s.Range(ctx, stream, 0, ^uint64(0))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, uint64(1_000_000_000), got[0].Version())
	require.Equal(t, uint64(3_000_000_000), got[2].Version())
}

func TestAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	ev := mintEvent(1, 0, 0, 100)
	stream := ev.Stream(1)

	require.NoError(t, s.Append(ctx, ev))
	require.NoError(t, s.Append(ctx, ev)) // exact re-delivery

	got, err := s.Range(ctx, stream, 0, ^uint64(0))
	require.NoError(t, err)
	require.Len(t, got, 1, "re-delivery of an identical event must not duplicate")
}

func TestAppendDetectsConflictingPayload(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	ev := mintEvent(1, 0, 0, 100)
	conflicting := ev
	conflicting.Payload = events.MintPayload{
		Asset:           common.HexToAddress("0xbeef"),
		OnBehalfOf:      common.HexToAddress("0xcafe"),
		Side:            events.Collateral,
		Value:           big.NewInt(999), // same dedup key, different value
		BalanceIncrease: big.NewInt(0),
		Index:           big.NewInt(1),
	}

	require.NoError(t, s.Append(ctx, ev))
	err := s.Append(ctx, conflicting)
	require.ErrorIs(t, err, ErrConflictingPayload)
}

func TestAppendStreamingRejectsOutOfOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.AppendStreaming(ctx, mintEvent(5, 0, 0, 100)))
	err := s.AppendStreaming(ctx, mintEvent(4, 0, 0, 50))
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestAppendStreamingAllowsRedeliveryOfLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	ev := mintEvent(5, 0, 0, 100)

	require.NoError(t, s.AppendStreaming(ctx, ev))
	require.NoError(t, s.AppendStreaming(ctx, ev), "re-delivery of the current watermark event is not out-of-order")
}

func TestWatermarkAdvancesMonotonically(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	stream := mintEvent(1, 0, 0, 100).Stream(1)

	w, err := s.Watermark(ctx, stream)
	require.NoError(t, err)
	require.Equal(t, uint64(0), w)

	require.NoError(t, s.Append(ctx, mintEvent(1, 0, 0, 100)))
	w, err = s.Watermark(ctx, stream)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000), w)

	require.NoError(t, s.Append(ctx, mintEvent(2, 0, 0, 200)))
	w, err = s.Watermark(ctx, stream)
	require.NoError(t, err)
	require.Equal(t, uint64(2_000_000_000), w)
}
