package broker

import "net"

// RegisterSubscriber records conn as the socket through which subscriber's
// pushes are delivered. A name collision silently overwrites the previous
// mapping; the prior connection is left open and its pushes are simply no
// longer reachable through the map.
func (b *Broker) RegisterSubscriber(name string, conn net.Conn) *outbound {
	out := newOutbound(conn)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = out
	b.updateGaugesLocked()
	b.log.Debug().Str("subscriber", name).Msg("subscriber session registered")
	return out
}

// RegisterPublisher records conn so disconnect cleanup can find the name.
func (b *Broker) RegisterPublisher(name string, conn net.Conn) *outbound {
	out := newOutbound(conn)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishers[name] = out
	b.updateGaugesLocked()
	b.log.Debug().Str("publisher", name).Msg("publisher session registered")
	return out
}
