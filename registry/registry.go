// Package registry tracks the relay endpoints a messenger can connect to.
package registry

// Endpoint is one advertised relay server.
type Endpoint struct {
	URL     string // WebSocket URL, e.g. wss://relay-1.example.com/websocket
	Weight  int    // Weight for endpoint selection
	Version string
}

type Registry interface {
	Register(service string, ep Endpoint, ttl int64) error
	Deregister(service string, url string) error
	Discover(service string) ([]Endpoint, error)
	Watch(service string) <-chan []Endpoint
}
