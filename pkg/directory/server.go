package directory

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/rs/zerolog"
)

// Server accepts one connection per request: announce or query, reply once,
// close.
type Server struct {
	registry *Registry
	ln       net.Listener
	log      zerolog.Logger
}

// NewServer wraps ln around registry.
func NewServer(registry *Registry, ln net.Listener) *Server {
	return &Server{registry: registry, ln: ln, log: relaylog.Component("directory-server")}
}

// Serve runs the accept loop until the listener closes.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return fmt.Errorf("directory: accept: %w", err)
		}
		go s.handle(conn)
	}
}

// handle reads exactly one request frame, replies once, and closes the
// connection — the directory protocol never keeps a socket open past its
// single request/response.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	dec := wire.NewDecoder(conn)
	raw, err := dec.RawFrame()
	if err != nil {
		s.log.Debug().Err(err).Msg("connection closed before a request frame arrived")
		return
	}

	var disc struct {
		UserType types.Role `json:"user type"`
	}
	if err := json.Unmarshal(raw, &disc); err != nil {
		s.log.Warn().Err(err).Msg("malformed directory request, dropped")
		return
	}

	enc := wire.NewEncoder(conn)

	switch disc.UserType {
	case types.RoleBroker:
		var req types.DirectoryRegisterRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			s.log.Warn().Err(err).Msg("malformed broker register request")
			return
		}
		addr := types.BrokerAddr{IP: req.IP, Port: req.Port}
		brokers := s.registry.Register(addr)
		resp := types.DirectoryRegisterResponse{UserType: types.Role("directory"), Brokers: brokers}
		if err := enc.WriteFrame(resp); err != nil {
			s.log.Warn().Err(err).Str("broker", addr.String()).Msg("failed to reply to broker registration")
		}

	case types.RolePublisher, types.RoleSubscriber:
		resp := types.DirectoryQueryResponse{Brokers: s.registry.Query()}
		if err := enc.WriteFrame(resp); err != nil {
			s.log.Warn().Err(err).Msg("failed to reply to directory query")
		}

	default:
		s.log.Warn().Str("user_type", string(disc.UserType)).Msg("unrecognized directory request, dropped")
	}
}
