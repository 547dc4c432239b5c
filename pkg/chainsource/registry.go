package chainsource

import (
	"fmt"
	"sync"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
)

// serviceChainKey identifies one (service, blockchain) adapter slot.
type serviceChainKey struct {
	serviceID    string
	blockchainID string
}

// rewriteTable maps unsupported (canonical, chain) combinations to a
// designated fallback service for that chain. Canonical's API has no
// Ethereum support, so requests for it on either Ethereum chain are
// transparently rewritten to Infura, preserved verbatim from the
// original system's hard-coded mapping.
var rewriteTable = map[serviceChainKey]string{
	{serviceID: "canonical", blockchainID: "ethereum-mainnet"}: "infura",
	{serviceID: "canonical", blockchainID: "ethereum-ropsten"}: "infura",
}

// ServiceDef is the static configuration needed to build an adapter for
// one service.
type ServiceDef struct {
	ServiceID string
	BaseURL   string
	APIKey    string
}

// Registry is a process-wide memoized map from (service, chain) to the
// adapter serving it. Entries are created under a coarse lock on first
// access per key and never evicted.
type Registry struct {
	mu       sync.Mutex
	services map[string]ServiceDef
	adapters map[serviceChainKey]Adapter
}

// NewRegistry builds a Registry from a set of service definitions keyed
// by service ID.
func NewRegistry(services []ServiceDef) *Registry {
	byID := make(map[string]ServiceDef, len(services))
	for _, svc := range services {
		byID[svc.ServiceID] = svc
	}
	return &Registry{
		services: byID,
		adapters: make(map[serviceChainKey]Adapter),
	}
}

// Get returns the adapter for (serviceID, blockchainID), applying the
// rewrite table and memoizing the result. Unknown service IDs fail with
// a validation-typed AppError.
func (r *Registry) Get(serviceID, blockchainID string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	effectiveService := serviceID
	if rewritten, ok := rewriteTable[serviceChainKey{serviceID: serviceID, blockchainID: blockchainID}]; ok {
		effectiveService = rewritten
	}

	key := serviceChainKey{serviceID: effectiveService, blockchainID: blockchainID}
	if adapter, ok := r.adapters[key]; ok {
		return adapter, nil
	}

	def, ok := r.services[effectiveService]
	if !ok {
		return nil, applerrors.NewValidationError(fmt.Sprintf("unknown service_id %q", effectiveService))
	}

	adapter := newBreakerAdapter(key.serviceID+"/"+key.blockchainID, buildAdapter(def))
	r.adapters[key] = adapter
	return adapter, nil
}

func buildAdapter(def ServiceDef) Adapter {
	if def.ServiceID == "infura" {
		return NewInfuraAdapter(def.BaseURL, def.APIKey)
	}
	return NewRESTAdapter(def.BaseURL, def.APIKey)
}
