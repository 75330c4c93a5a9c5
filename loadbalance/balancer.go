// Package loadbalance selects which relay endpoint a messenger connects to
// when discovery returns more than one.
//
// Three strategies:
//   - RoundRobin:      equal-capacity relays, spread connections evenly
//   - WeightedRandom:  heterogeneous relays (different capacity)
//   - ConsistentHash:  pin a caller address to the same relay across
//     reconnects (useful when relays keep per-peer state)
package loadbalance

import "swap-messenger/registry"

// Balancer picks one endpoint from the discovered list. Called on every
// (re)connect, must be goroutine-safe.
type Balancer interface {
	Pick(eps []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
