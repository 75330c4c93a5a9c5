// Package registry provides the etcd-based implementation of the Registry
// interface.
//
// Relay operators register their WebSocket endpoint under a TTL lease:
//
//	Key:   /swap-messenger/{service}/{url}
//	Value: JSON-encoded Endpoint
//
// If a relay crashes, its lease expires and the entry disappears on its own,
// so clients never discover a dead endpoint for long. Messengers call
// Discover on every (re)connect, which also makes reconnects fail over to
// whichever relays are still alive.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/swap-messenger/"

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry creates a registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register advertises a relay endpoint with a TTL lease and keeps the lease
// renewed in the background. The lease id stays local to the call so one
// EtcdRegistry can safely register several endpoints.
func (r *EtcdRegistry) Register(service string, ep Endpoint, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+service+"/"+ep.URL, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a relay endpoint. Called on graceful relay shutdown.
func (r *EtcdRegistry) Deregister(service string, url string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+service+"/"+url)
	return err
}

// Watch emits a fresh endpoint list whenever the service prefix changes
// (registration, deregistration, lease expiry).
func (r *EtcdRegistry) Watch(service string) <-chan []Endpoint {
	ctx := context.TODO()
	ch := make(chan []Endpoint, 1)
	prefix := keyPrefix + service + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full list instead of applying
			// individual watch events.
			eps, _ := r.Discover(service)
			ch <- eps
		}
	}()

	return ch
}

// Discover returns all currently registered endpoints for a service.
func (r *EtcdRegistry) Discover(service string) ([]Endpoint, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+service+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	eps := make([]Endpoint, 0)
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // skip malformed entries
		}
		eps = append(eps, ep)
	}

	return eps, nil
}
