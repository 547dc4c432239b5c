package dashboard

import (
	"context"

	"github.com/blockset-corp/chainaudit/pkg/chaincache"
	"github.com/blockset-corp/chainaudit/pkg/chainsource"
)

// canonicalServiceID is the fixed service_id the canonical source is
// always looked up under, matching the scheduler's own lookup.
const canonicalServiceID = "canonical"

// ChainTipReader implements TipReader by looking up the canonical
// adapter for a blockchain and caching its reported tip for the
// duration the underlying chaincache.Cache was built with.
type ChainTipReader struct {
	Registry *chainsource.Registry
	Cache    *chaincache.Cache
}

// NewChainTipReader builds a ChainTipReader over registry and cache.
func NewChainTipReader(registry *chainsource.Registry, cache *chaincache.Cache) *ChainTipReader {
	return &ChainTipReader{Registry: registry, Cache: cache}
}

// Tip returns the cached (or freshly fetched) chain tip height for
// blockchainID.
func (t *ChainTipReader) Tip(ctx context.Context, blockchainID string) (int64, error) {
	return t.Cache.GetOrFetch(ctx, blockchainID, func(ctx context.Context) (int64, error) {
		adapter, err := t.Registry.Get(canonicalServiceID, blockchainID)
		if err != nil {
			return 0, err
		}
		chain, err := adapter.GetChain(ctx)
		if err != nil {
			return 0, err
		}
		if !chain.OK() || chain.ChainHeight == nil {
			return 0, nil
		}
		return *chain.ChainHeight, nil
	})
}
