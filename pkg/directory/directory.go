// Package directory implements the broker registry service: a
// single-process, append-only list of broker addresses that publishers,
// subscribers, and brokers query or register against at bootstrap.
package directory

import (
	"sync"

	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/relaymetrics"
	"github.com/cuemby/relay/pkg/types"
	"github.com/rs/zerolog"
)

// Registry holds the append-only broker list. There is no liveness check
// or removal: a broker that restarts and re-registers appears twice, a
// documented quirk.
type Registry struct {
	mu      sync.Mutex
	brokers []types.BrokerAddr
	log     zerolog.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{log: relaylog.Component("directory")}
}

// Register appends addr to the registry and returns the full list
// including the new entry.
func (r *Registry) Register(addr types.BrokerAddr) []types.BrokerAddr {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.brokers = append(r.brokers, addr)
	relaymetrics.RegisteredBrokersTotal.Set(float64(len(r.brokers)))
	r.log.Info().Str("broker", addr.String()).Int("count", len(r.brokers)).Msg("broker registered")

	out := make([]types.BrokerAddr, len(r.brokers))
	copy(out, r.brokers)
	return out
}

// Query returns a snapshot of the current broker list for a publisher or
// subscriber looking for a broker to connect to.
func (r *Registry) Query() []types.BrokerAddr {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.BrokerAddr, len(r.brokers))
	copy(out, r.brokers)
	return out
}

// Count reports the current registry size, for diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.brokers)
}
