package pipeline

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"solvkeep/core/events"
)

func bigFromInt(v int64) *big.Int { return big.NewInt(v) }

type fakeStore struct {
	appended   []events.LogEvent
	watermarks map[string]uint64
}

func (f *fakeStore) Append(ctx context.Context, ev events.LogEvent) error {
	f.appended = append(f.appended, ev)
	return nil
}

func (f *fakeStore) AppendStreaming(ctx context.Context, ev events.LogEvent) error {
	f.appended = append(f.appended, ev)
	return nil
}

func (f *fakeStore) Watermark(ctx context.Context, stream events.StreamID) (uint64, error) {
	return f.watermarks[stream.String()], nil
}

type fakeApplier struct {
	calls int
}

func (f *fakeApplier) Apply(ev events.LogEvent) error {
	f.calls++
	return nil
}

func testMintEvent() events.LogEvent {
	return events.LogEvent{
		Kind:     events.Mint,
		Key:      events.OrderingKey{Block: 10, TxIndex: 0, LogIndex: 0},
		TxHash:   common.HexToHash("0xaaaa"),
		Contract: common.HexToAddress("0xc011"),
		Payload: events.MintPayload{
			Asset:           common.HexToAddress("0xa5e7"),
			OnBehalfOf:      common.HexToAddress("0xb0b0"),
			Side:            events.Collateral,
			Value:           bigFromInt(1000),
			BalanceIncrease: bigFromInt(0),
			Index:           bigFromInt(1),
		},
	}
}

func TestSinkDispatchesNewEventOnce(t *testing.T) {
	store := &fakeStore{watermarks: map[string]uint64{}}
	apply := &fakeApplier{}
	sink := &Sink{Store: store, Dispatch: apply}

	ev := testMintEvent()
	require.NoError(t, sink.Append(context.Background(), ev))
	require.Equal(t, 1, apply.calls)
}

func TestSinkSkipsDispatchOnRedelivery(t *testing.T) {
	store := &fakeStore{watermarks: map[string]uint64{}}
	apply := &fakeApplier{}
	sink := &Sink{Store: store, Dispatch: apply}

	ev := testMintEvent()
	require.NoError(t, sink.Append(context.Background(), ev))
	require.NoError(t, sink.Append(context.Background(), ev))
	require.Equal(t, 1, apply.calls, "re-delivery of the same event must not be folded twice")
}
