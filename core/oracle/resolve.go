package oracle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MaxSourceDepth bounds the recursive resolution AssetSourceUpdated
// triggers when a source's denominator itself points at another source
// (spec §4.5.5).
const MaxSourceDepth = 8

// ErrUnresolvedSource is returned when a source chain exceeds MaxSourceDepth.
var ErrUnresolvedSource = errors.New("oracle: source chain exceeds maximum resolution depth")

// resolveLeaves walks cfg's denominator chain, collecting every leaf
// numerator feed address referenced along the way (the union of leaf
// sources an asset's price composition depends on).
func (c *Composer) resolveLeaves(source common.Address, depth int) (map[common.Address]struct{}, error) {
	limit := c.maxDepth
	if limit == 0 {
		limit = MaxSourceDepth
	}
	if depth > limit {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedSource, source.Hex())
	}
	cfg, ok := c.configs[source]
	if !ok {
		return nil, fmt.Errorf("oracle: no configuration for source %s", source.Hex())
	}

	leaves := map[common.Address]struct{}{numeratorFeed(cfg): {}}
	if cfg.DenominatorSource != (common.Address{}) {
		sub, err := c.resolveLeaves(cfg.DenominatorSource, depth+1)
		if err != nil {
			return nil, err
		}
		for l := range sub {
			leaves[l] = struct{}{}
		}
	}
	return leaves, nil
}

// LeafSources returns the full set of leaf feed addresses monitored to
// price asset, resolved through the bounded recursive chain rooted at its
// bound source.
func (c *Composer) LeafSources(asset common.Address) (map[common.Address]struct{}, error) {
	source, ok := c.assetSource[asset]
	if !ok {
		return nil, fmt.Errorf("oracle: asset %s has no bound source", asset.Hex())
	}
	return c.resolveLeaves(source, 0)
}

func numeratorFeed(cfg SourceConfig) common.Address {
	if cfg.NumeratorSource != (common.Address{}) {
		return cfg.NumeratorSource
	}
	return cfg.Address
}
