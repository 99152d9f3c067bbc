// Package config loads the daemon's TOML configuration file, creating one
// with the spec's stated defaults on first run.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds every recognized option (spec §6).
type Config struct {
	ChainID     uint64 `toml:"ChainID"`
	DatabaseURL string `toml:"DatabaseURL"`
	RedisURL    string `toml:"RedisURL"`

	// ClickHouseAddr configures the Event Log Store's production backend.
	// Left empty, the daemon falls back to an in-memory store suitable
	// only for local development.
	ClickHouseAddr     []string `toml:"ClickHouseAddr"`
	ClickHouseDatabase string   `toml:"ClickHouseDatabase"`
	ClickHouseUsername string   `toml:"ClickHouseUsername"`
	ClickHousePassword string   `toml:"ClickHousePassword"`

	RPCURLHTTP string `toml:"RPCURLHTTP"`
	RPCURLWS   string `toml:"RPCURLWS"`
	MEVShareWS string `toml:"MEVShareWS"`

	StreamingThresholdBlocks uint64 `toml:"StreamingThresholdBlocks"`
	ReorgDepth               uint64 `toml:"ReorgDepth"`
	RPCTimeoutMS             uint64 `toml:"RPCTimeoutMS"`

	CandidateHealthBandLow  float64 `toml:"CandidateHealthBandLow"`
	CandidateHealthBandHigh float64 `toml:"CandidateHealthBandHigh"`
	CandidateMinUSD         float64 `toml:"CandidateMinUSD"`
	CloseFactor             float64 `toml:"CloseFactor"`

	PriorityDebtAssets       []string `toml:"PriorityDebtAssets"`
	PriorityCollateralAssets []string `toml:"PriorityCollateralAssets"`

	MaxOracleSourceDepth       int `toml:"MaxOracleSourceDepth"`
	MultiplierGrowthWindowDays int `toml:"MultiplierGrowthWindowDays"`

	// AccrualProjectionFactor scales the Health-Factor Evaluator's interest
	// accrual extrapolation term. The spec's source material shows a
	// `· 12` factor in some but not all views; this reconciles the
	// divergence by configuration instead of guessing at on-chain
	// behavior (spec §9).
	AccrualProjectionFactor float64 `toml:"AccrualProjectionFactor"`

	WETHAddress string `toml:"WETHAddress"`

	// EventContracts maps an event kind name (e.g. "Mint", "ReserveDataUpdated")
	// to the contract addresses emitting it, so the coordinator knows which
	// streams to register on startup.
	EventContracts map[string][]string `toml:"EventContracts"`

	// AssetDecimals maps an asset address to its token's decimal count. No
	// event in the watched set carries decimals, so they are provisioned
	// here; an asset without an entry is excluded from evaluation.
	AssetDecimals map[string]int `toml:"AssetDecimals"`

	SwapPaths []SwapPathEntry `toml:"SwapPaths"`

	// OracleSources provisions the static per-source wiring of the Oracle
	// Price Composer: multiplier adapter kind and parameters, denominator
	// chaining, decimals, and cap shape. Asset-to-source bindings
	// themselves arrive via AssetSourceUpdated events, not configuration.
	OracleSources []OracleSourceEntry `toml:"OracleSources"`
}

// OracleSourceEntry configures one oracle source contract.
type OracleSourceEntry struct {
	Address           string `toml:"Address"`
	NumeratorSource   string `toml:"NumeratorSource"`
	DenominatorSource string `toml:"DenominatorSource"`

	// MultiplierKind names one of the closed set of adapter kinds; an
	// unrecognized kind fails the source's initialization at startup.
	MultiplierKind     string `toml:"MultiplierKind"`
	MultiplierContract string `toml:"MultiplierContract"`
	FeedA              string `toml:"FeedA"`
	FeedB              string `toml:"FeedB"`

	// PendleRatePerSecondRay and PendleMaturityUnix configure the
	// pendle-discount adapter; ignored for other kinds.
	PendleRatePerSecondRay string `toml:"PendleRatePerSecondRay"`
	PendleMaturityUnix     int64  `toml:"PendleMaturityUnix"`

	HasCap   bool `toml:"HasCap"`
	Decimals int  `toml:"Decimals"`
}

// SwapPathEntry configures one directional entry in the Liquidation
// Candidate Engine's swap-path dictionary.
type SwapPathEntry struct {
	TokenIn  string   `toml:"TokenIn"`
	TokenOut string   `toml:"TokenOut"`
	Hops     []string `toml:"Hops"`
	PoolFees []uint32 `toml:"PoolFees"`
}

// Load reads the configuration at path, creating a default one if it does
// not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills in the spec's stated defaults for any zero-valued
// option, so a partially-specified config file still behaves sensibly.
func applyDefaults(cfg *Config) {
	if cfg.StreamingThresholdBlocks == 0 {
		cfg.StreamingThresholdBlocks = 1000
	}
	if cfg.ReorgDepth == 0 {
		cfg.ReorgDepth = 32
	}
	if cfg.RPCTimeoutMS == 0 {
		cfg.RPCTimeoutMS = 5000
	}
	if cfg.CandidateHealthBandLow == 0 {
		cfg.CandidateHealthBandLow = 1.0
	}
	if cfg.CandidateHealthBandHigh == 0 {
		cfg.CandidateHealthBandHigh = 1.25
	}
	if cfg.CandidateMinUSD == 0 {
		cfg.CandidateMinUSD = 10_000
	}
	if cfg.CloseFactor == 0 {
		cfg.CloseFactor = 0.5
	}
	if cfg.MaxOracleSourceDepth == 0 {
		cfg.MaxOracleSourceDepth = 8
	}
	if cfg.MultiplierGrowthWindowDays == 0 {
		cfg.MultiplierGrowthWindowDays = 7
	}
	if cfg.AccrualProjectionFactor == 0 {
		cfg.AccrualProjectionFactor = 1
	}
	if cfg.WETHAddress == "" {
		cfg.WETHAddress = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	}
	if cfg.EventContracts == nil {
		cfg.EventContracts = map[string][]string{}
	}
	if cfg.AssetDecimals == nil {
		cfg.AssetDecimals = map[string]int{}
	}
	if cfg.SwapPaths == nil {
		cfg.SwapPaths = []SwapPathEntry{}
	}
	if cfg.OracleSources == nil {
		cfg.OracleSources = []OracleSourceEntry{}
	}
}

// createDefault writes a fresh default configuration file to path.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ChainID:                    1,
		DatabaseURL:                "postgres://localhost:5432/solvkeep?sslmode=disable",
		RedisURL:                   "redis://localhost:6379/0",
		RPCURLHTTP:                 "http://localhost:8545",
		RPCURLWS:                   "ws://localhost:8546",
		StreamingThresholdBlocks:   1000,
		ReorgDepth:                 32,
		RPCTimeoutMS:               5000,
		CandidateHealthBandLow:     1.0,
		CandidateHealthBandHigh:    1.25,
		CandidateMinUSD:            10_000,
		CloseFactor:                0.5,
		PriorityDebtAssets:         []string{},
		PriorityCollateralAssets:   []string{},
		MaxOracleSourceDepth:       8,
		MultiplierGrowthWindowDays: 7,
		AccrualProjectionFactor:    1,
		WETHAddress:                "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		EventContracts:             map[string][]string{},
		AssetDecimals:              map[string]int{},
		SwapPaths:                  []SwapPathEntry{},
		OracleSources:              []OracleSourceEntry{},
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
