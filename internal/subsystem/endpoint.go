package subsystem

import "sync"

// Endpoint describes a channel's transport configuration: protocol,
// address, port, and (for MQTT/MQTTS) the topics it subscribes to or
// publishes on (spec §3).
type Endpoint struct {
	Protocol Protocol
	Address  string
	Port     int
	Topics   []string
	IsActive bool
}

// Origin is the subsystem's configured sensor location, a (latitude,
// longitude) pair. The Python original used geopy.Point; no geospatial
// library appears anywhere in the retrieved example pack, so a plain
// struct is the justified stdlib-only substitute (no third-party lat/lon
// value type was available to ground this on).
type Origin struct {
	Latitude  float64
	Longitude float64
}

// EndpointBox is a mutex-guarded Endpoint, since a channel's endpoint is
// written by the controller goroutine and read concurrently by the
// channel's own transport worker (spec §5: "sensor_origin and chain_uid
// fields are likewise mutated by the controller and read by everything
// else").
type EndpointBox struct {
	mu sync.RWMutex
	ep Endpoint
}

// Get returns a copy of the current endpoint.
func (b *EndpointBox) Get() Endpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ep
}

// Set replaces the endpoint.
func (b *EndpointBox) Set(ep Endpoint) {
	b.mu.Lock()
	b.ep = ep
	b.mu.Unlock()
}

// Clear resets the endpoint to its zero value (unconfigured, inactive).
func (b *EndpointBox) Clear() {
	b.mu.Lock()
	b.ep = Endpoint{}
	b.mu.Unlock()
}

// SetActive updates only the IsActive flag. The ingress and egress
// transport workers do not call it: a broker or TCP disconnect leaves the
// channel endpoint's IsActive flag unchanged.
func (b *EndpointBox) SetActive(active bool) {
	b.mu.Lock()
	b.ep.IsActive = active
	b.mu.Unlock()
}
