// Package oracle implements the Oracle Price Composer: it reconstructs the
// on-chain asset price from four independently-versioned streams
// (numerator, denominator, multiplier, max-cap), in both an "as the
// protocol would currently read it" form and a form predicted for an
// imminent transaction (spec §4.5).
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"solvkeep/core/events"
	"solvkeep/core/oracle/adapter"
	"solvkeep/core/oracle/capadapter"
	"solvkeep/core/ray"
)

type capState struct {
	stable  *capadapter.Stable
	dynamic *capadapter.Dynamic
	version uint64
}

func (c capState) source() (capadapter.Source, bool) {
	if c.stable != nil {
		return *c.stable, true
	}
	if c.dynamic != nil {
		return *c.dynamic, true
	}
	return nil, false
}

// Composer owns every source's configuration and streamed state, and
// derives the three composite price variants the rest of the pipeline
// consumes.
type Composer struct {
	reader   adapter.Reader
	growth   *GrowthTracker
	maxDepth int

	mu          sync.RWMutex
	configs     map[common.Address]SourceConfig
	assetSource map[common.Address]common.Address
	numerators  map[common.Address]*Stream
	caps        map[common.Address]capState
}

// New constructs a Composer. reader backs every live multiplier adapter
// read; growth backs predicted-transaction multiplier projection.
func New(reader adapter.Reader, growth *GrowthTracker) *Composer {
	return &Composer{
		reader:      reader,
		growth:      growth,
		configs:     make(map[common.Address]SourceConfig),
		assetSource: make(map[common.Address]common.Address),
		numerators:  make(map[common.Address]*Stream),
		caps:        make(map[common.Address]capState),
	}
}

// SetMaxSourceDepth overrides the resolution depth bound applied by
// LeafSources; zero keeps the default of MaxSourceDepth.
func (c *Composer) SetMaxSourceDepth(depth int) {
	c.maxDepth = depth
}

// RegisterSource wires a source's static configuration (multiplier
// adapter, denominator chain, decimals, cap shape). Source configuration
// is not event-driven; it is provisioned alongside the asset registry.
func (c *Composer) RegisterSource(cfg SourceConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[cfg.Address] = cfg
}

// BindAsset records the AssetSourceUpdated binding of asset to source.
func (c *Composer) BindAsset(asset, source common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assetSource[asset] = source
}

// ApplyAssetSourceUpdated folds an AssetSourceUpdated event into the
// asset-to-source binding (spec §4.5.5).
func (c *Composer) ApplyAssetSourceUpdated(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.AssetSourceUpdatedPayload)
	if !ok {
		return fmt.Errorf("oracle: AssetSourceUpdated payload has unexpected type %T", ev.Payload)
	}
	c.BindAsset(p.Asset, p.Source)
	return nil
}

// SampleMultipliers reads every registered source's multiplier adapter once
// and records the observation in the growth tracker, feeding the
// least-squares fit behind PredictedTransactionPrice. Individual adapter
// failures skip that source rather than aborting the sweep; the first such
// error is returned once every other source has been sampled.
func (c *Composer) SampleMultipliers(ctx context.Context, now time.Time) error {
	c.mu.RLock()
	cfgs := make([]SourceConfig, 0, len(c.configs))
	for _, cfg := range c.configs {
		cfgs = append(cfgs, cfg)
	}
	c.mu.RUnlock()

	var firstErr error
	for _, cfg := range cfgs {
		mult, err := adapter.Resolve(cfg.MultiplierKind, c.reader, cfg.MultiplierParams)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		value, err := mult.Value(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.growth.Record(cfg.Address, now, value)
	}
	return firstErr
}

func (c *Composer) streamFor(feed common.Address) *Stream {
	s, ok := c.numerators[feed]
	if !ok {
		s = &Stream{}
		c.numerators[feed] = s
	}
	return s
}

// ApplyNewTransmission folds a NewTransmission event into its feed's
// event-latest numerator.
func (c *Composer) ApplyNewTransmission(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.NewTransmissionPayload)
	if !ok {
		return fmt.Errorf("oracle: NewTransmission payload has unexpected type %T", ev.Payload)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamFor(p.Source).applyEvent(p.Answer, ev.Version())
	return nil
}

// ApplyAnswerUpdated folds an AnswerUpdated event into its feed's
// event-latest numerator.
func (c *Composer) ApplyAnswerUpdated(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.AnswerUpdatedPayload)
	if !ok {
		return fmt.Errorf("oracle: AnswerUpdated payload has unexpected type %T", ev.Payload)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamFor(p.Source).applyEvent(p.CurrentAnswer, ev.Version())
	return nil
}

// ApplyPendingNumerator folds a MEV-share pending-transaction observation
// into a feed's transaction-latest numerator. Pending-tx payloads arrive
// off the mempool stream, not the confirmed-log event stream, so they are
// applied directly rather than through the LogEvent path.
func (c *Composer) ApplyPendingNumerator(feed common.Address, value *big.Int, observedAtVersion uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamFor(feed).applyTx(value, observedAtVersion)
}

// ApplyPriceCapUpdated folds a PriceCapUpdated event into its source's
// stable max-cap.
func (c *Composer) ApplyPriceCapUpdated(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.PriceCapUpdatedPayload)
	if !ok {
		return fmt.Errorf("oracle: PriceCapUpdated payload has unexpected type %T", ev.Payload)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.caps[p.Source]; ok && current.version > ev.Version() {
		return nil
	}
	c.caps[p.Source] = capState{stable: &capadapter.Stable{PriceCap: p.PriceCap}, version: ev.Version()}
	return nil
}

// ApplyCapParametersUpdated folds a CapParametersUpdated event into its
// source's dynamic max-cap.
func (c *Composer) ApplyCapParametersUpdated(ev events.LogEvent) error {
	p, ok := ev.Payload.(events.CapParametersUpdatedPayload)
	if !ok {
		return fmt.Errorf("oracle: CapParametersUpdated payload has unexpected type %T", ev.Payload)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.caps[p.Source]; ok && current.version > ev.Version() {
		return nil
	}
	c.caps[p.Source] = capState{
		dynamic: &capadapter.Dynamic{
			SnapshotRatio:               p.SnapshotRatio,
			SnapshotTimestamp:           time.Unix(int64(p.SnapshotTimestamp), 0),
			MaxRatioGrowthPerSecond:     p.MaxRatioGrowthPerSecond,
			MaxYearlyRatioGrowthPercent: p.MaxYearlyRatioGrowthPercent,
		},
		version: ev.Version(),
	}
	return nil
}

// numeratorOverDenominator computes numerator/denominator for cfg using
// the selected stream accessor (event-latest or tx-latest).
func (c *Composer) numeratorOverDenominator(cfg SourceConfig, pick func(*Stream) (*big.Int, uint64)) (ratio *big.Int, numVersion, denVersion uint64, err error) {
	numFeed := numeratorFeed(cfg)
	numStream, ok := c.numerators[numFeed]
	if !ok {
		return nil, 0, 0, fmt.Errorf("oracle: no numerator stream for feed %s", numFeed.Hex())
	}
	numerator, numVersion := pick(numStream)
	if numerator == nil {
		return nil, 0, 0, fmt.Errorf("oracle: numerator not yet observed for feed %s", numFeed.Hex())
	}

	if cfg.DenominatorSource == (common.Address{}) {
		return new(big.Int).Set(numerator), numVersion, 0, nil
	}

	denCfg, ok := c.configs[cfg.DenominatorSource]
	if !ok {
		return nil, 0, 0, fmt.Errorf("oracle: no configuration for denominator source %s", cfg.DenominatorSource.Hex())
	}
	denFeed := numeratorFeed(denCfg)
	denStream, ok := c.numerators[denFeed]
	if !ok {
		return nil, 0, 0, fmt.Errorf("oracle: no numerator stream for denominator feed %s", denFeed.Hex())
	}
	denominator, denVersion := pick(denStream)
	if denominator == nil {
		return nil, 0, 0, fmt.Errorf("oracle: denominator not yet observed for feed %s", denFeed.Hex())
	}

	ratio, err = ray.RDivFloor(numerator, denominator)
	return ratio, numVersion, denVersion, err
}

func eventLatest(s *Stream) (*big.Int, uint64) { return s.EventLatest, s.EventVersion }
func txLatest(s *Stream) (*big.Int, uint64)    { return s.TxLatest, s.TxVersion }

// applyCap resolves cfg's cap (if any) and folds it into raw per §4.5.1.
func (c *Composer) applyCap(cfg SourceConfig, raw, multiplier *big.Int, now time.Time) (*big.Int, error) {
	if !cfg.HasCap {
		return raw, nil
	}
	cs, ok := c.caps[cfg.Address]
	if !ok {
		return raw, nil // cap configured but no cap event observed yet; treat as uncapped
	}
	source, ok := cs.source()
	if !ok {
		return raw, nil
	}
	maxCap, capType := source.MaxCap(now)

	switch capType {
	case capadapter.CapPrice:
		if raw.Cmp(maxCap) > 0 {
			return new(big.Int).Set(maxCap), nil
		}
		return raw, nil
	case capadapter.CapRatio:
		boundedMultiplier := multiplier
		if multiplier.Cmp(maxCap) > 0 {
			boundedMultiplier = maxCap
		}
		// raw was numerator/denominator * multiplier; recompute with the
		// bounded multiplier rather than bounding the final price.
		withoutMultiplier, err := ray.RDivFloor(raw, multiplier)
		if err != nil {
			return nil, err
		}
		return ray.RMulFloor(withoutMultiplier, boundedMultiplier)
	default:
		return raw, nil
	}
}

func (c *Composer) sourceConfigFor(asset common.Address) (SourceConfig, error) {
	source, ok := c.assetSource[asset]
	if !ok {
		return SourceConfig{}, fmt.Errorf("oracle: asset %s has no bound source", asset.Hex())
	}
	cfg, ok := c.configs[source]
	if !ok {
		return SourceConfig{}, fmt.Errorf("oracle: no configuration for source %s", source.Hex())
	}
	return cfg, nil
}

func (c *Composer) multiplierAdapter(cfg SourceConfig) (adapter.Adapter, error) {
	return adapter.Resolve(cfg.MultiplierKind, c.reader, cfg.MultiplierParams)
}

// decimalsDivide converts an effective price into its base-unit and USD
// forms. The effective value must fit an unsigned 256-bit word — the shape
// the protocol's own oracle read returns on-chain — so anything wider is an
// overflow, not a price.
func (c *Composer) decimalsDivide(value *big.Int, cfg SourceConfig) (*big.Int, float64, error) {
	if !ray.FitsUint256(value) {
		return nil, 0, fmt.Errorf("oracle: composed price: %w", ray.ErrOverflow)
	}
	divided := new(big.Int).Quo(value, cfg.DecimalsPlaces)
	f := new(big.Float).Quo(new(big.Float).SetInt(value), new(big.Float).SetInt(cfg.DecimalsPlaces))
	usd, _ := f.Float64()
	return divided, usd, nil
}

// HistoricalEventPrice composes the price from four event-latest
// components: "what the protocol would currently read on-chain."
func (c *Composer) HistoricalEventPrice(ctx context.Context, asset common.Address, block uint64, blockTime time.Time) (CompositePrice, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, err := c.sourceConfigFor(asset)
	if err != nil {
		return CompositePrice{}, err
	}
	ratio, numVersion, denVersion, err := c.numeratorOverDenominator(cfg, eventLatest)
	if err != nil {
		return CompositePrice{}, err
	}
	mult, err := c.multiplierAdapter(cfg)
	if err != nil {
		return CompositePrice{}, err
	}
	multiplier, err := mult.Value(ctx)
	if err != nil {
		return CompositePrice{}, fmt.Errorf("oracle: multiplier: %w", err)
	}

	raw, err := ray.RMulFloor(ratio, multiplier)
	if err != nil {
		return CompositePrice{}, err
	}
	effective, err := c.applyCap(cfg, raw, multiplier, blockTime)
	if err != nil {
		return CompositePrice{}, err
	}
	priceRay, priceUSD, err := c.decimalsDivide(effective, cfg)
	if err != nil {
		return CompositePrice{}, err
	}

	return CompositePrice{
		PriceRay:           priceRay,
		PriceUSD:           priceUSD,
		BlockNumber:        block,
		BlockTimestamp:     blockTime,
		NumeratorVersion:   numVersion,
		DenominatorVersion: denVersion,
	}, nil
}

// HistoricalTransactionPrice composes the price using the transaction-
// latest numerator together with event-latest denominator, multiplier,
// and max-cap (spec §4.5.2): only the numerator moves on every
// transmission, the rest move on rarer configuration transactions.
func (c *Composer) HistoricalTransactionPrice(ctx context.Context, asset common.Address, block uint64, blockTime time.Time) (CompositePrice, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, err := c.sourceConfigFor(asset)
	if err != nil {
		return CompositePrice{}, err
	}

	numFeed := numeratorFeed(cfg)
	numStream, ok := c.numerators[numFeed]
	if !ok || numStream.TxLatest == nil {
		return CompositePrice{}, fmt.Errorf("oracle: no pending numerator observed for feed %s", numFeed.Hex())
	}

	var denominator *big.Int
	var denVersion uint64
	if cfg.DenominatorSource != (common.Address{}) {
		denCfg, ok := c.configs[cfg.DenominatorSource]
		if !ok {
			return CompositePrice{}, fmt.Errorf("oracle: no configuration for denominator source %s", cfg.DenominatorSource.Hex())
		}
		denFeed := numeratorFeed(denCfg)
		denStream, ok := c.numerators[denFeed]
		if !ok || denStream.EventLatest == nil {
			return CompositePrice{}, fmt.Errorf("oracle: denominator not yet observed for feed %s", denFeed.Hex())
		}
		denominator = denStream.EventLatest
		denVersion = denStream.EventVersion
	} else {
		denominator = new(big.Int).Set(ray.RAY)
	}

	ratio, err := ray.RDivFloor(numStream.TxLatest, denominator)
	if err != nil {
		return CompositePrice{}, err
	}

	mult, err := c.multiplierAdapter(cfg)
	if err != nil {
		return CompositePrice{}, err
	}
	multiplier, err := mult.Value(ctx)
	if err != nil {
		return CompositePrice{}, fmt.Errorf("oracle: multiplier: %w", err)
	}

	raw, err := ray.RMulFloor(ratio, multiplier)
	if err != nil {
		return CompositePrice{}, err
	}
	effective, err := c.applyCap(cfg, raw, multiplier, blockTime)
	if err != nil {
		return CompositePrice{}, err
	}
	priceRay, priceUSD, err := c.decimalsDivide(effective, cfg)
	if err != nil {
		return CompositePrice{}, err
	}

	return CompositePrice{
		PriceRay:           priceRay,
		PriceUSD:           priceUSD,
		BlockNumber:        block,
		BlockTimestamp:     blockTime,
		NumeratorVersion:   numStream.TxVersion,
		DenominatorVersion: denVersion,
	}, nil
}

// PredictedTransactionPrice additionally projects the multiplier one block
// forward using the tracked growth rate (spec §4.5.2).
func (c *Composer) PredictedTransactionPrice(ctx context.Context, asset common.Address, block uint64, blockTime time.Time, secondsToNextBlock float64) (CompositePrice, error) {
	c.mu.RLock()
	cfg, err := c.sourceConfigFor(asset)
	if err != nil {
		c.mu.RUnlock()
		return CompositePrice{}, err
	}
	ratio, numVersion, denVersion, err := c.numeratorOverDenominator(cfg, txLatestOrEvent)
	if err != nil {
		c.mu.RUnlock()
		return CompositePrice{}, err
	}
	mult, err := c.multiplierAdapter(cfg)
	if err != nil {
		c.mu.RUnlock()
		return CompositePrice{}, err
	}
	c.mu.RUnlock()

	currentMultiplier, err := mult.Value(ctx)
	if err != nil {
		return CompositePrice{}, fmt.Errorf("oracle: multiplier: %w", err)
	}
	projected, err := c.growth.ProjectMultiplier(cfg.Address, currentMultiplier, secondsToNextBlock)
	if err != nil {
		projected = currentMultiplier // no growth history yet; fall back to the current reading
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	raw, err := ray.RMulFloor(ratio, projected)
	if err != nil {
		return CompositePrice{}, err
	}
	effective, err := c.applyCap(cfg, raw, projected, blockTime)
	if err != nil {
		return CompositePrice{}, err
	}
	priceRay, priceUSD, err := c.decimalsDivide(effective, cfg)
	if err != nil {
		return CompositePrice{}, err
	}

	return CompositePrice{
		PriceRay:           priceRay,
		PriceUSD:           priceUSD,
		BlockNumber:        block,
		BlockTimestamp:     blockTime,
		NumeratorVersion:   numVersion,
		DenominatorVersion: denVersion,
	}, nil
}

// txLatestOrEvent prefers a stream's transaction-latest value, falling
// back to its event-latest value when no pending observation exists yet.
func txLatestOrEvent(s *Stream) (*big.Int, uint64) {
	if s.TxLatest != nil {
		return s.TxLatest, s.TxVersion
	}
	return s.EventLatest, s.EventVersion
}
