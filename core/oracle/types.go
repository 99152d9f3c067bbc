package oracle

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/oracle/adapter"
	"solvkeep/core/oracle/capadapter"
)

// Stream holds the event-latest and transaction-latest variants of one
// observed value, each independently versioned (spec §4.5.2).
type Stream struct {
	EventLatest  *big.Int
	EventVersion uint64
	TxLatest     *big.Int
	TxVersion    uint64
}

func (s *Stream) applyEvent(value *big.Int, version uint64) {
	if version < s.EventVersion && s.EventLatest != nil {
		return
	}
	s.EventLatest = value
	s.EventVersion = version
}

func (s *Stream) applyTx(value *big.Int, version uint64) {
	if version < s.TxVersion && s.TxLatest != nil {
		return
	}
	s.TxLatest = value
	s.TxVersion = version
}

// SourceConfig is the static (configuration-driven, not event-driven)
// wiring for one oracle source: which leaf feed supplies its numerator,
// which source (if any) supplies its denominator, which multiplier adapter
// computes its growth factor, and how its max-cap is shaped.
type SourceConfig struct {
	Address           common.Address
	NumeratorSource   common.Address // defaults to Address itself when zero
	DenominatorSource common.Address // zero => denominator is RAY (1.0)
	MultiplierKind    adapter.Kind
	MultiplierParams  adapter.Params
	HasCap            bool
	CapKind           capadapter.CapType
	DecimalsPlaces    *big.Int
}

// CompositePrice is the Composer's output for one composition variant:
// historical event, historical transaction, or predicted transaction
// (spec §4.5.2).
type CompositePrice struct {
	PriceRay           *big.Int
	PriceUSD           float64
	BlockNumber        uint64
	BlockTimestamp     time.Time
	NumeratorVersion   uint64
	DenominatorVersion uint64
}
