package broker

import (
	"net"
	"sync"

	"github.com/cuemby/relay/pkg/wire"
)

// outbound serializes writes to one socket. The broker's coarse lock
// already serializes the mutations that trigger pushes, but a session's own
// response writes happen outside that lock, so each socket still needs its
// own writer mutex to keep frames from interleaving on the wire.
type outbound struct {
	conn net.Conn
	enc  *wire.Encoder
	mu   sync.Mutex
}

func newOutbound(conn net.Conn) *outbound {
	return &outbound{conn: conn, enc: wire.NewEncoder(conn)}
}

func (o *outbound) send(v interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enc.WriteFrame(v)
}

func (o *outbound) close() error {
	return o.conn.Close()
}
