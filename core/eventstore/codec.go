package eventstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/events"
)

func init() {
	gob.Register(events.MintPayload{})
	gob.Register(events.BurnPayload{})
	gob.Register(events.BalanceTransferPayload{})
	gob.Register(events.CollateralToggledPayload{})
	gob.Register(events.UserEModeSetPayload{})
	gob.Register(events.ReserveDataUpdatedPayload{})
	gob.Register(events.ReserveInitializedPayload{})
	gob.Register(events.CollateralConfigurationChangedPayload{})
	gob.Register(events.EModeAssetCategoryChangedPayload{})
	gob.Register(events.EModeCategoryAddedPayload{})
	gob.Register(events.AssetSourceUpdatedPayload{})
	gob.Register(events.NewTransmissionPayload{})
	gob.Register(events.AnswerUpdatedPayload{})
	gob.Register(events.PriceCapUpdatedPayload{})
	gob.Register(events.CapParametersUpdatedPayload{})
}

// encoded is the gob-serializable mirror of events.LogEvent: gob cannot
// encode an `any` field directly without the concrete type having been
// registered, which init() above does for every payload kind.
type encoded struct {
	Kind      events.Kind
	Key       events.OrderingKey
	Timestamp int64 // unix nanos
	TxHash    common.Hash
	Contract  common.Address
	Payload   any
}

func encodeEvent(ev events.LogEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(encoded{
		Kind:      ev.Kind,
		Key:       ev.Key,
		Timestamp: ev.Timestamp.UnixNano(),
		TxHash:    ev.TxHash,
		Contract:  ev.Contract,
		Payload:   ev.Payload,
	}); err != nil {
		return nil, fmt.Errorf("eventstore: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEvent(data []byte) (events.LogEvent, error) {
	var e encoded
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&e); err != nil {
		return events.LogEvent{}, fmt.Errorf("eventstore: decode: %w", err)
	}
	return events.LogEvent{
		Kind:      e.Kind,
		Key:       e.Key,
		Timestamp: time.Unix(0, e.Timestamp).UTC(),
		TxHash:    e.TxHash,
		Contract:  e.Contract,
		Payload:   e.Payload,
	}, nil
}
