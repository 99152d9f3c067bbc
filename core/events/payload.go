package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MintPayload backs the Mint event kind for both the Collateral and
// VariableDebt/StableDebt sides (spec §4.3).
type MintPayload struct {
	Asset           common.Address
	OnBehalfOf      common.Address
	Side            BalanceSide
	Value           *big.Int
	BalanceIncrease *big.Int
	Index           *big.Int
}

// BurnPayload backs the Burn event kind.
type BurnPayload struct {
	Asset           common.Address
	From            common.Address
	Side            BalanceSide
	Value           *big.Int
	BalanceIncrease *big.Int
	Index           *big.Int
}

// BalanceTransferPayload backs the BalanceTransfer event kind. Index is
// optional: some on-chain variants omit it, in which case the aggregator
// falls back to the block-level liquidity index (spec §4.3).
type BalanceTransferPayload struct {
	Asset common.Address
	Side  BalanceSide
	From  common.Address
	To    common.Address
	Value *big.Int
	Index *big.Int // nil when the emitting contract variant omits it
}

// CollateralToggledPayload backs ReserveUsedAsCollateralEnabled/Disabled.
type CollateralToggledPayload struct {
	Asset   common.Address
	User    common.Address
	Enabled bool
}

// UserEModeSetPayload backs UserEModeSet.
type UserEModeSetPayload struct {
	User       common.Address
	CategoryID uint8
}

// ReserveDataUpdatedPayload backs ReserveDataUpdated: the source of latest
// liquidity indices and interest rates (spec §4.4).
type ReserveDataUpdatedPayload struct {
	Asset               common.Address
	LiquidityRate       *big.Int
	VariableBorrowRate  *big.Int
	LiquidityIndex      *big.Int
	VariableBorrowIndex *big.Int
}

// ReserveInitializedPayload backs ReserveInitialized: the first binding of
// an asset to its aToken/variable-debt-token/interest-rate-strategy trio.
type ReserveInitializedPayload struct {
	Asset                common.Address
	AToken               common.Address
	VariableDebtToken    common.Address
	InterestRateStrategy common.Address
}

// CollateralConfigurationChangedPayload backs
// CollateralConfigurationChanged: LTV/threshold/bonus updates for an asset.
type CollateralConfigurationChangedPayload struct {
	Asset                   common.Address
	LTVBps                  uint16
	LiquidationThresholdBps uint16
	LiquidationBonusBps     uint16
}

// EModeAssetCategoryChangedPayload backs EModeAssetCategoryChanged: binds
// an asset to an e-mode category id.
type EModeAssetCategoryChangedPayload struct {
	Asset      common.Address
	CategoryID uint8
}

// EModeCategoryAddedPayload backs EModeCategoryAdded: defines (or redefines)
// an e-mode category's LTV/threshold/bonus.
type EModeCategoryAddedPayload struct {
	CategoryID              uint8
	LTVBps                  uint16
	LiquidationThresholdBps uint16
	LiquidationBonusBps     uint16
	Label                   string
}

// AssetSourceUpdatedPayload backs AssetSourceUpdated: binds an asset to its
// oracle source contract (spec §4.5.5).
type AssetSourceUpdatedPayload struct {
	Asset  common.Address
	Source common.Address
}

// NewTransmissionPayload backs NewTransmission, the observed-numerator
// stream emitted by Chainlink-style aggregators.
type NewTransmissionPayload struct {
	Source common.Address
	Answer *big.Int
}

// AnswerUpdatedPayload backs AnswerUpdated, an alternate observed-numerator
// emission shape used by some feed implementations.
type AnswerUpdatedPayload struct {
	Source        common.Address
	CurrentAnswer *big.Int
	RoundID       *big.Int
}

// PriceCapUpdatedPayload backs PriceCapUpdated: the stable-price-cap max-cap
// source (spec §4.5.4).
type PriceCapUpdatedPayload struct {
	Source   common.Address
	PriceCap *big.Int
}

// CapParametersUpdatedPayload backs CapParametersUpdated: the dynamic-price-cap
// max-cap source (spec §4.5.4).
type CapParametersUpdatedPayload struct {
	Source                      common.Address
	SnapshotRatio               *big.Int
	SnapshotTimestamp           uint64
	MaxRatioGrowthPerSecond     *big.Int
	MaxYearlyRatioGrowthPercent uint64
}
