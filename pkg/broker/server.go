package broker

import (
	"fmt"
	"io"
	"net"

	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/rs/zerolog"
)

// Server owns the TCP listener that publishers, subscribers, and peer
// brokers connect to, plus the dial side of the peer link manager: a bare
// net.Listener accept loop spawning one goroutine per connection.
type Server struct {
	broker *Broker
	ln     net.Listener
	log    zerolog.Logger
}

// NewServer wraps ln for b. b.Self() must describe the address ln is bound
// to, since that is what gets advertised to peers and the directory.
func NewServer(b *Broker, ln net.Listener) *Server {
	return &Server{
		broker: b,
		ln:     ln,
		log:    relaylog.WithBroker(relaylog.Component("broker-server"), b.Self().String()),
	}
}

// Serve runs the accept loop until the listener closes.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return fmt.Errorf("broker: accept: %w", err)
		}
		go Handle(s.broker, conn, s.DialPeer)
	}
}

// Bootstrap dials every address in addrs, skipping this broker's own
// address and any already-linked peer. Used for the explicit `-b` flag; the
// directory-sourced peer list calls DialPeer directly, so both paths go
// through the same dial-and-announce code.
func (s *Server) Bootstrap(addrs []types.BrokerAddr) {
	for _, addr := range addrs {
		s.DialPeer(addr)
	}
}

// DialPeer opens an outbound connection to addr, announces this broker on
// it, and registers the connection as the send path for sync records
// destined to addr. It is the PeerDialer passed to every session, used for
// bootstrap and for dialing back an inbound peer we don't yet hold a link to.
func (s *Server) DialPeer(addr types.BrokerAddr) {
	if s.broker.IsSelf(addr) || s.broker.HasPeer(addr) {
		return
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		s.log.Warn().Err(err).Str("peer", addr.String()).Msg("failed to dial peer")
		return
	}

	self := s.broker.Self()
	announce := types.AnnounceFrame{
		UserType:   types.RoleBroker,
		UserName:   self.String(),
		IPAddress:  self.IP,
		PortNumber: self.Port,
	}
	if err := wire.NewEncoder(conn).WriteFrame(announce); err != nil {
		s.log.Warn().Err(err).Str("peer", addr.String()).Msg("failed to announce to peer")
		conn.Close()
		return
	}

	if _, added := s.broker.AddPeer(addr, conn); !added {
		// Lost a race to a concurrent dial for the same address.
		conn.Close()
		return
	}

	// This connection only ever carries our writes. Nothing is expected to
	// arrive on it; a read returning at all means the peer closed it or the
	// socket broke, either way the link is dead and must be dropped so a
	// future reconnect isn't blocked by the dedup check above.
	go func() {
		buf := make([]byte, 1)
		_, err := conn.Read(buf)
		if err != io.EOF {
			s.log.Debug().Err(err).Str("peer", addr.String()).Msg("unexpected data or error on send-only peer link")
		}
		s.broker.RemovePeer(addr)
		conn.Close()
	}()
}
