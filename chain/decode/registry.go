package decode

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"solvkeep/core/events"
)

// signature is the Solidity event signature used to derive topic0. These
// are this pipeline's own minimal event shapes, carrying exactly the fields
// each payload needs rather than a full upstream protocol's ABI.
var signature = map[events.Kind]string{
	events.ReserveInitialized:              "ReserveInitialized(address,address,address,address)",
	events.CollateralConfigurationChanged:  "CollateralConfigurationChanged(address,uint256,uint256,uint256)",
	events.EModeAssetCategoryChanged:       "EModeAssetCategoryChanged(address,uint8)",
	events.EModeCategoryAdded:              "EModeCategoryAdded(uint8,uint256,uint256,uint256,string)",
	events.AssetSourceUpdated:              "AssetSourceUpdated(address,address)",
	events.Mint:                            "Mint(address,address,uint8,uint256,uint256,uint256)",
	events.Burn:                            "Burn(address,address,uint8,uint256,uint256,uint256)",
	events.BalanceTransfer:                 "BalanceTransfer(address,uint8,address,address,uint256,uint256)",
	events.ReserveUsedAsCollateralEnabled:  "ReserveUsedAsCollateralEnabled(address,address)",
	events.ReserveUsedAsCollateralDisabled: "ReserveUsedAsCollateralDisabled(address,address)",
	events.UserEModeSet:                    "UserEModeSet(address,uint8)",
	events.ReserveDataUpdated:              "ReserveDataUpdated(address,uint256,uint256,uint256,uint256)",
	events.NewTransmission:                 "NewTransmission(int192,address)",
	events.AnswerUpdated:                   "AnswerUpdated(int256,uint256,uint256)",
	events.PriceCapUpdated:                 "PriceCapUpdated(address,uint256)",
	events.CapParametersUpdated:            "CapParametersUpdated(address,uint256,uint64,uint256,uint64)",
}

// Topic0 returns the keccak256 topic hash identifying kind's log stream.
func Topic0(kind events.Kind) (common.Hash, bool) {
	sig, ok := signature[kind]
	if !ok {
		return common.Hash{}, false
	}
	return crypto.Keccak256Hash([]byte(sig)), true
}

type decodeFunc func(log types.Log) (any, error)

var decoders = map[events.Kind]decodeFunc{
	events.ReserveInitialized:              decodeReserveInitialized,
	events.CollateralConfigurationChanged:  decodeCollateralConfigurationChanged,
	events.EModeAssetCategoryChanged:       decodeEModeAssetCategoryChanged,
	events.EModeCategoryAdded:              decodeEModeCategoryAdded,
	events.AssetSourceUpdated:              decodeAssetSourceUpdated,
	events.Mint:                            decodeMint,
	events.Burn:                            decodeBurn,
	events.BalanceTransfer:                 decodeBalanceTransfer,
	events.ReserveUsedAsCollateralEnabled:  decodeCollateralToggled(true),
	events.ReserveUsedAsCollateralDisabled: decodeCollateralToggled(false),
	events.UserEModeSet:                    decodeUserEModeSet,
	events.ReserveDataUpdated:              decodeReserveDataUpdated,
	events.NewTransmission:                 decodeNewTransmission,
	events.AnswerUpdated:                   decodeAnswerUpdated,
	events.PriceCapUpdated:                 decodePriceCapUpdated,
	events.CapParametersUpdated:            decodeCapParametersUpdated,
}

// ToEvent decodes log into a events.LogEvent of kind. blockTime is supplied
// by the caller since a log carries only a block number, not its timestamp.
func ToEvent(kind events.Kind, log types.Log, blockTime uint64) (events.LogEvent, error) {
	fn, ok := decoders[kind]
	if !ok {
		return events.LogEvent{}, fmt.Errorf("decode: no decoder registered for kind %s", kind)
	}
	payload, err := fn(log)
	if err != nil {
		return events.LogEvent{}, fmt.Errorf("decode: %s: %w", kind, err)
	}
	return events.LogEvent{
		Kind: kind,
		Key: events.OrderingKey{
			Block:    log.BlockNumber,
			TxIndex:  uint32(log.TxIndex),
			LogIndex: uint32(log.Index),
		},
		Timestamp: time.Unix(int64(blockTime), 0).UTC(),
		TxHash:    log.TxHash,
		Contract:  log.Address,
		Payload:   payload,
	}, nil
}

func decodeMint(log types.Log) (any, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("Mint: expected 3 topics, got %d", len(log.Topics))
	}
	side, err := uint8At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	value, err := uint256At(log.Data, 1)
	if err != nil {
		return nil, err
	}
	increase, err := uint256At(log.Data, 2)
	if err != nil {
		return nil, err
	}
	index, err := uint256At(log.Data, 3)
	if err != nil {
		return nil, err
	}
	return events.MintPayload{
		Asset:           addressFromTopic(log.Topics[1]),
		OnBehalfOf:      addressFromTopic(log.Topics[2]),
		Side:            balanceSideFromUint8(side),
		Value:           value,
		BalanceIncrease: increase,
		Index:           index,
	}, nil
}

func decodeBurn(log types.Log) (any, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("Burn: expected 3 topics, got %d", len(log.Topics))
	}
	side, err := uint8At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	value, err := uint256At(log.Data, 1)
	if err != nil {
		return nil, err
	}
	increase, err := uint256At(log.Data, 2)
	if err != nil {
		return nil, err
	}
	index, err := uint256At(log.Data, 3)
	if err != nil {
		return nil, err
	}
	return events.BurnPayload{
		Asset:           addressFromTopic(log.Topics[1]),
		From:            addressFromTopic(log.Topics[2]),
		Side:            balanceSideFromUint8(side),
		Value:           value,
		BalanceIncrease: increase,
		Index:           index,
	}, nil
}

func decodeBalanceTransfer(log types.Log) (any, error) {
	if len(log.Topics) < 4 {
		return nil, fmt.Errorf("BalanceTransfer: expected 4 topics, got %d", len(log.Topics))
	}
	side, err := uint8At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	value, err := uint256At(log.Data, 1)
	if err != nil {
		return nil, err
	}
	index, err := uint256At(log.Data, 2)
	if err != nil {
		return nil, err
	}
	return events.BalanceTransferPayload{
		Asset: addressFromTopic(log.Topics[1]),
		Side:  balanceSideFromUint8(side),
		From:  addressFromTopic(log.Topics[2]),
		To:    addressFromTopic(log.Topics[3]),
		Value: value,
		Index: index,
	}, nil
}

func decodeCollateralToggled(enabled bool) decodeFunc {
	return func(log types.Log) (any, error) {
		if len(log.Topics) < 3 {
			return nil, fmt.Errorf("ReserveUsedAsCollateral: expected 3 topics, got %d", len(log.Topics))
		}
		return events.CollateralToggledPayload{
			Asset:   addressFromTopic(log.Topics[1]),
			User:    addressFromTopic(log.Topics[2]),
			Enabled: enabled,
		}, nil
	}
}

func decodeUserEModeSet(log types.Log) (any, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("UserEModeSet: expected 2 topics, got %d", len(log.Topics))
	}
	categoryID, err := uint8At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	return events.UserEModeSetPayload{
		User:       addressFromTopic(log.Topics[1]),
		CategoryID: categoryID,
	}, nil
}

func decodeReserveDataUpdated(log types.Log) (any, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("ReserveDataUpdated: expected 2 topics, got %d", len(log.Topics))
	}
	liquidityRate, err := uint256At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	variableBorrowRate, err := uint256At(log.Data, 1)
	if err != nil {
		return nil, err
	}
	liquidityIndex, err := uint256At(log.Data, 2)
	if err != nil {
		return nil, err
	}
	variableBorrowIndex, err := uint256At(log.Data, 3)
	if err != nil {
		return nil, err
	}
	return events.ReserveDataUpdatedPayload{
		Asset:                addressFromTopic(log.Topics[1]),
		LiquidityRate:        liquidityRate,
		VariableBorrowRate:   variableBorrowRate,
		LiquidityIndex:       liquidityIndex,
		VariableBorrowIndex:  variableBorrowIndex,
	}, nil
}

func decodeReserveInitialized(log types.Log) (any, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("ReserveInitialized: expected 3 topics, got %d", len(log.Topics))
	}
	variableDebtToken, err := addressAt(log.Data, 0)
	if err != nil {
		return nil, err
	}
	strategy, err := addressAt(log.Data, 1)
	if err != nil {
		return nil, err
	}
	return events.ReserveInitializedPayload{
		Asset:                addressFromTopic(log.Topics[1]),
		AToken:               addressFromTopic(log.Topics[2]),
		VariableDebtToken:    variableDebtToken,
		InterestRateStrategy: strategy,
	}, nil
}

func decodeCollateralConfigurationChanged(log types.Log) (any, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("CollateralConfigurationChanged: expected 2 topics, got %d", len(log.Topics))
	}
	ltv, err := uint16At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	threshold, err := uint16At(log.Data, 1)
	if err != nil {
		return nil, err
	}
	bonus, err := uint16At(log.Data, 2)
	if err != nil {
		return nil, err
	}
	return events.CollateralConfigurationChangedPayload{
		Asset:                   addressFromTopic(log.Topics[1]),
		LTVBps:                  ltv,
		LiquidationThresholdBps: threshold,
		LiquidationBonusBps:     bonus,
	}, nil
}

func decodeAssetSourceUpdated(log types.Log) (any, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("AssetSourceUpdated: expected 3 topics, got %d", len(log.Topics))
	}
	return events.AssetSourceUpdatedPayload{
		Asset:  addressFromTopic(log.Topics[1]),
		Source: addressFromTopic(log.Topics[2]),
	}, nil
}

func decodeEModeAssetCategoryChanged(log types.Log) (any, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("EModeAssetCategoryChanged: expected 2 topics, got %d", len(log.Topics))
	}
	categoryID, err := uint8At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	return events.EModeAssetCategoryChangedPayload{
		Asset:      addressFromTopic(log.Topics[1]),
		CategoryID: categoryID,
	}, nil
}

func decodeEModeCategoryAdded(log types.Log) (any, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("EModeCategoryAdded: expected 2 topics, got %d", len(log.Topics))
	}
	ltv, err := uint16At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	threshold, err := uint16At(log.Data, 1)
	if err != nil {
		return nil, err
	}
	bonus, err := uint16At(log.Data, 2)
	if err != nil {
		return nil, err
	}
	label, err := stringAt(log.Data, 3)
	if err != nil {
		return nil, err
	}
	return events.EModeCategoryAddedPayload{
		CategoryID:              uint8FromTopic(log.Topics[1]),
		LTVBps:                  ltv,
		LiquidationThresholdBps: threshold,
		LiquidationBonusBps:     bonus,
		Label:                   label,
	}, nil
}

func decodeNewTransmission(log types.Log) (any, error) {
	answer, err := uint256At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	return events.NewTransmissionPayload{
		Source: log.Address,
		Answer: answer,
	}, nil
}

func decodeAnswerUpdated(log types.Log) (any, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("AnswerUpdated: expected 3 topics, got %d", len(log.Topics))
	}
	return events.AnswerUpdatedPayload{
		Source:        log.Address,
		CurrentAnswer: log.Topics[1].Big(),
		RoundID:       log.Topics[2].Big(),
	}, nil
}

func decodePriceCapUpdated(log types.Log) (any, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("PriceCapUpdated: expected 2 topics, got %d", len(log.Topics))
	}
	cap, err := uint256At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	return events.PriceCapUpdatedPayload{
		Source:   addressFromTopic(log.Topics[1]),
		PriceCap: cap,
	}, nil
}

func decodeCapParametersUpdated(log types.Log) (any, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("CapParametersUpdated: expected 2 topics, got %d", len(log.Topics))
	}
	ratio, err := uint256At(log.Data, 0)
	if err != nil {
		return nil, err
	}
	snapshotAt, err := uint64At(log.Data, 1)
	if err != nil {
		return nil, err
	}
	growth, err := uint256At(log.Data, 2)
	if err != nil {
		return nil, err
	}
	yearlyPct, err := uint64At(log.Data, 3)
	if err != nil {
		return nil, err
	}
	return events.CapParametersUpdatedPayload{
		Source:                      addressFromTopic(log.Topics[1]),
		SnapshotRatio:               ratio,
		SnapshotTimestamp:           snapshotAt,
		MaxRatioGrowthPerSecond:     growth,
		MaxYearlyRatioGrowthPercent: yearlyPct,
	}, nil
}

func balanceSideFromUint8(v uint8) events.BalanceSide {
	switch v {
	case 0:
		return events.Collateral
	case 1:
		return events.VariableDebt
	default:
		return events.StableDebt
	}
}
