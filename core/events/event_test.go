package events

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestOrderingKeyLess(t *testing.T) {
	cases := []struct {
		name string
		a, b OrderingKey
		want bool
	}{
		{"lower block wins", OrderingKey{Block: 1}, OrderingKey{Block: 2}, true},
		{"same block, lower tx index wins", OrderingKey{Block: 5, TxIndex: 1}, OrderingKey{Block: 5, TxIndex: 2}, true},
		{"same block and tx, lower log index wins", OrderingKey{Block: 5, TxIndex: 1, LogIndex: 0}, OrderingKey{Block: 5, TxIndex: 1, LogIndex: 1}, true},
		{"equal keys are not less", OrderingKey{Block: 5, TxIndex: 1, LogIndex: 1}, OrderingKey{Block: 5, TxIndex: 1, LogIndex: 1}, false},
		{"higher block loses", OrderingKey{Block: 9}, OrderingKey{Block: 2}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, c.a.Less(c.b))
		})
	}
}

func TestOrderingKeyVersion(t *testing.T) {
	k := OrderingKey{Block: 100, TxIndex: 3, LogIndex: 7}
	require.Equal(t, uint64(100_000_030_007), k.Version())

	earlier := OrderingKey{Block: 99, TxIndex: 999, LogIndex: 9999}
	require.Less(t, earlier.Version(), k.Version(), "version must preserve ordering across block boundaries")
}

func TestDedupKeyIdentifiesRedelivery(t *testing.T) {
	tx := common.HexToHash("0x1")
	e1 := LogEvent{
		Kind:      Mint,
		Key:       OrderingKey{Block: 10, TxIndex: 0, LogIndex: 2},
		TxHash:    tx,
		Contract:  common.HexToAddress("0xaaaa"),
		Timestamp: time.Unix(1000, 0),
		Payload: MintPayload{
			Asset:           common.HexToAddress("0xbeef"),
			OnBehalfOf:      common.HexToAddress("0xcafe"),
			Side:            Collateral,
			Value:           big.NewInt(100),
			BalanceIncrease: big.NewInt(0),
			Index:           big.NewInt(1),
		},
	}
	e2 := e1
	e2.Timestamp = time.Unix(2000, 0) // re-delivery can carry a different observed timestamp

	require.Equal(t, e1.Dedup(), e2.Dedup())
	require.True(t, SamePayload(e1, e2), "re-delivery of the same log must be recognized as identical")

	e3 := e1
	e3.Payload = MintPayload{
		Asset:           common.HexToAddress("0xbeef"),
		OnBehalfOf:      common.HexToAddress("0xcafe"),
		Side:            Collateral,
		Value:           big.NewInt(999), // different value under the same dedup key
		BalanceIncrease: big.NewInt(0),
		Index:           big.NewInt(1),
	}
	require.Equal(t, e1.Dedup(), e3.Dedup())
	require.False(t, SamePayload(e1, e3), "conflicting payload under the same dedup key must not be treated as a harmless re-delivery")
}

func TestStreamDerivation(t *testing.T) {
	contract := common.HexToAddress("0xdead")
	e := LogEvent{Kind: ReserveDataUpdated, Contract: contract}
	got := e.Stream(1)
	require.Equal(t, StreamID{Chain: 1, Kind: ReserveDataUpdated, Contract: contract}, got)
}
