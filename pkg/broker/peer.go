package broker

import (
	"net"

	"github.com/cuemby/relay/pkg/relaymetrics"
	"github.com/cuemby/relay/pkg/types"
)

// peerLink is one entry of the peer link set: a live connection to another
// broker, tagged with the remote's advertised {ip, port} so dedup can
// compare against it before dialing again.
type peerLink struct {
	addr types.BrokerAddr
	out  *outbound
}

// HasPeer reports whether addr is already present in the peer link set,
// for dedup checks performed before dialing.
func (b *Broker) HasPeer(addr types.BrokerAddr) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, exists := b.peers[addr.String()]
	return exists
}

// IsSelf reports whether addr names this broker's own advertised endpoint,
// so the directory's broker list can be filtered before dialing.
func (b *Broker) IsSelf(addr types.BrokerAddr) bool {
	return addr.String() == b.self.String()
}

// AddPeer registers a new peer link keyed by its advertised address. It
// returns false without replacing the existing entry if the key is already
// present, preserving invariant 4 (at most one link per remote address);
// the caller is then responsible for closing the redundant connection.
func (b *Broker) AddPeer(addr types.BrokerAddr, conn net.Conn) (*outbound, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := addr.String()
	if _, exists := b.peers[key]; exists {
		return nil, false
	}

	out := newOutbound(conn)
	b.peers[key] = &peerLink{addr: addr, out: out}
	b.updateGaugesLocked()
	b.log.Info().Str("peer", key).Msg("peer link established")
	return out, true
}

// RemovePeer drops a peer link once its socket closes. This does not
// invalidate state already learned from that peer.
func (b *Broker) RemovePeer(addr types.BrokerAddr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, addr.String())
	b.updateGaugesLocked()
	b.log.Info().Str("peer", addr.String()).Msg("peer link closed")
}

// PeerCount reports the current size of the peer link set, used in tests
// and diagnostics to confirm the dedup invariant holds.
func (b *Broker) PeerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

// forwardSyncLocked ships rec to every current peer link, once, without
// re-propagating records the broker itself received from a peer.
// Caller must hold b.mu: this keeps the mutation, its local pushes, and its
// peer forwards serialized in one order.
func (b *Broker) forwardSyncLocked(rec types.RequestFrame) {
	for key, link := range b.peers {
		if err := link.out.send(rec); err != nil {
			b.log.Warn().Err(err).Str("peer", key).Str("sync_action", string(rec.SyncAction)).
				Msg("failed to forward sync record, peer link left in place")
			continue
		}
		relaymetrics.SyncRecordsSentTotal.WithLabelValues(string(rec.SyncAction)).Inc()
	}
}
