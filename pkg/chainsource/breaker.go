package chainsource

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// breakerAdapter wraps an Adapter with a per-(service, chain) circuit
// breaker, the same sony/gobreaker isolation pattern the teacher's
// notification delivery path applies per channel (BR-NOT-055's
// circuitbreaker.NewManager(gobreaker.Settings{...})): trip after a run
// of consecutive failures so a provider that's down stops burning the
// retry budget on every tick instead of merely degrading latency.
type breakerAdapter struct {
	Adapter
	chain *gobreaker.CircuitBreaker
	block *gobreaker.CircuitBreaker
}

// newBreakerAdapter wraps inner with two independent breakers — one per
// operation — named after key so /metrics and logs can tell GetChain
// trips apart from GetBlock trips for the same service.
func newBreakerAdapter(key string, inner Adapter) *breakerAdapter {
	readyToTrip := func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return &breakerAdapter{
		Adapter: inner,
		chain: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        key + ":get_chain",
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: readyToTrip,
		}),
		block: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        key + ":get_block",
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: readyToTrip,
		}),
	}
}

// GetChain runs the wrapped adapter's GetChain through the chain breaker.
func (a *breakerAdapter) GetChain(ctx context.Context) (Chain, error) {
	result, err := a.chain.Execute(func() (interface{}, error) {
		return a.Adapter.GetChain(ctx)
	})
	if err != nil {
		return Chain{}, err
	}
	return result.(Chain), nil
}

// GetBlock runs the wrapped adapter's GetBlock through the block breaker.
func (a *breakerAdapter) GetBlock(ctx context.Context, height int64) (Block, error) {
	result, err := a.block.Execute(func() (interface{}, error) {
		return a.Adapter.GetBlock(ctx, height)
	})
	if err != nil {
		return Block{}, err
	}
	return result.(Block), nil
}
