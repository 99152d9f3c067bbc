// Package candidates implements the Liquidation Candidate Engine (spec
// §4.8): it scans HealthPosition snapshots for admissible users, ranks the
// (collateral, debt) pairs available to each, and resolves a swap path for
// flash-loan repayment and residual profit conversion.
package candidates

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SwapPath is an opaque route between two tokens, as registered by an
// external router integration (e.g. a Uniswap quoter). The Engine treats it
// as a black box: it only cares whether a path exists for a given pair.
type SwapPath struct {
	TokenIn  common.Address
	TokenOut common.Address
	Hops     []common.Address
	PoolFees []uint32
}

type swapKey struct {
	in  common.Address
	out common.Address
}

// SwapPathBook is the `dict_swap_paths` mapping (token_in, token_out) →
// path consulted during candidate assembly.
type SwapPathBook struct {
	mu    sync.RWMutex
	paths map[swapKey]SwapPath
}

// NewSwapPathBook constructs an empty path dictionary.
func NewSwapPathBook() *SwapPathBook {
	return &SwapPathBook{paths: make(map[swapKey]SwapPath)}
}

// Register records a path for tokenIn → tokenOut. Paths are directional:
// registering A→B does not imply B→A.
func (b *SwapPathBook) Register(tokenIn, tokenOut common.Address, path SwapPath) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paths[swapKey{tokenIn, tokenOut}] = path
}

// Lookup returns the registered path for tokenIn → tokenOut, if any.
func (b *SwapPathBook) Lookup(tokenIn, tokenOut common.Address) (SwapPath, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.paths[swapKey{tokenIn, tokenOut}]
	return p, ok
}
