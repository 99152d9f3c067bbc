// Package events defines the decoded contract-log event model that the rest
// of the pipeline ingests. An Event Log Store (see core/eventstore) persists
// values of this shape; every downstream aggregator folds them by Kind.
package events

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Kind enumerates the decoded contract-log event kinds the pipeline
// recognizes. The set is closed: an unrecognized kind is a decoding bug
// upstream of this module, not something the pipeline guesses at.
type Kind string

const (
	ReserveInitialized              Kind = "ReserveInitialized"
	CollateralConfigurationChanged  Kind = "CollateralConfigurationChanged"
	EModeAssetCategoryChanged       Kind = "EModeAssetCategoryChanged"
	EModeCategoryAdded              Kind = "EModeCategoryAdded"
	AssetSourceUpdated              Kind = "AssetSourceUpdated"
	Mint                            Kind = "Mint"
	Burn                            Kind = "Burn"
	BalanceTransfer                 Kind = "BalanceTransfer"
	ReserveUsedAsCollateralEnabled  Kind = "ReserveUsedAsCollateralEnabled"
	ReserveUsedAsCollateralDisabled Kind = "ReserveUsedAsCollateralDisabled"
	UserEModeSet                    Kind = "UserEModeSet"
	ReserveDataUpdated              Kind = "ReserveDataUpdated"
	NewTransmission                 Kind = "NewTransmission"
	AnswerUpdated                   Kind = "AnswerUpdated"
	PriceCapUpdated                 Kind = "PriceCapUpdated"
	CapParametersUpdated            Kind = "CapParametersUpdated"
)

// BalanceSide identifies which side of a user's position a Mint/Burn/
// BalanceTransfer event affects.
type BalanceSide string

const (
	Collateral   BalanceSide = "collateral"
	StableDebt   BalanceSide = "stable_debt"
	VariableDebt BalanceSide = "variable_debt"
)

// StreamID identifies one totally-ordered event stream: a single
// (chain, event kind, contract) tuple (spec §4.2). The Coordinator tracks
// one watermark per StreamID.
type StreamID struct {
	Chain    uint64
	Kind     Kind
	Contract common.Address
}

// String renders a StreamID for logging and metric labels.
func (s StreamID) String() string {
	return fmt.Sprintf("%d:%s:%s", s.Chain, s.Kind, s.Contract.Hex())
}
