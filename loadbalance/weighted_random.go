package loadbalance

import (
	"fmt"
	"math/rand"

	"swap-messenger/registry"
)

type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(eps []registry.Endpoint) (*registry.Endpoint, error) {
	if len(eps) == 0 {
		return nil, fmt.Errorf("no endpoints available")
	}

	// 计算总权重；全零权重退化为均匀随机
	totalWeight := 0
	for _, ep := range eps {
		totalWeight += ep.Weight
	}
	if totalWeight == 0 {
		return &eps[rand.Intn(len(eps))], nil
	}

	r := rand.Intn(totalWeight)
	for i := range eps {
		r -= eps[i].Weight
		if r < 0 {
			return &eps[i], nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
