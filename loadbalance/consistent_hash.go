package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"swap-messenger/registry"
)

// ConsistentHashBalancer maps a key (typically the caller's address) to an
// endpoint on a hash ring, so the same address lands on the same relay until
// the ring changes. Relays that keep per-peer state (intent caches, rate
// limits) benefit from this affinity across reconnects.
//
// Each real endpoint is mapped to N virtual nodes; without them a handful of
// relays would cluster on the ring and skew the distribution.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]*registry.Endpoint
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per
// endpoint.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		ring:     []uint32{},
		nodes:    make(map[uint32]*registry.Endpoint),
	}
}

// Add places an endpoint onto the ring with N virtual nodes, each hashed
// from "{url}#{i}" to spread evenly.
func (b *ConsistentHashBalancer) Add(ep *registry.Endpoint) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", ep.URL, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = ep
	}
	// Keep the ring sorted for binary search in Pick()
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick finds the endpoint responsible for the given key: hash, then binary
// search for the first node >= hash, wrapping around at the end of the ring.
//
// Note: Pick takes a string key rather than the endpoint list because
// consistent hashing is key-based, so it doesn't implement the Balancer
// interface directly.
func (b *ConsistentHashBalancer) Pick(key string) (*registry.Endpoint, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no endpoints on the ring")
	}
	hash := crc32.ChecksumIEEE([]byte(key))

	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
