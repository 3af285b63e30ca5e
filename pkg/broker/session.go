package broker

import (
	"encoding/json"
	"io"
	"net"

	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/rs/zerolog"
)

// PeerDialer is invoked when an inbound broker announce names a peer this
// broker holds no outbound link to. The callback dials that address and
// announces back, making the link bidirectional. It is supplied by the
// server, which owns net.Dial and the listen address this broker advertises.
type PeerDialer func(addr types.BrokerAddr)

// session is the per-connection state machine: one goroutine owns one
// socket from announce through disconnect, dispatching by role once the
// announce frame identifies the connecting party.
type session struct {
	broker *Broker
	conn   net.Conn
	dec    *wire.Decoder
	out    *outbound
	dial   PeerDialer

	state types.SessionState
	role  types.Role
	name  string
	log   zerolog.Logger
}

// Handle drives one accepted connection end to end. It blocks until the
// session ends — clean EOF, read error, or a fatal protocol violation —
// running the role-appropriate disconnect cleanup exactly once before
// returning. Callers run Handle in its own goroutine per accepted conn.
func Handle(b *Broker, conn net.Conn, dial PeerDialer) {
	sessionID := NewSessionID()
	s := &session{
		broker: b,
		conn:   conn,
		dec:    wire.NewDecoder(conn),
		out:    newOutbound(conn),
		dial:   dial,
		state:  types.SessionAnnouncing,
		log:    relaylog.Component("session").With().Str("session_id", sessionID).Logger(),
	}
	defer s.disconnect()

	var announce types.AnnounceFrame
	if err := s.dec.ReadFrame(&announce); err != nil {
		if err != io.EOF {
			s.log.Debug().Err(err).Msg("connection closed before announce frame")
		}
		return
	}

	s.role = announce.UserType
	s.name = announce.UserName
	s.state = types.SessionOperating
	s.log = relaylog.Component("session").With().
		Str("session_id", sessionID).Str("role", string(s.role)).Str("name", s.name).Logger()
	s.log.Debug().Msg("session announced")

	switch s.role {
	case types.RoleSubscriber:
		s.out = s.broker.RegisterSubscriber(s.name, conn)
		s.requestLoop()
	case types.RolePublisher:
		s.out = s.broker.RegisterPublisher(s.name, conn)
		s.requestLoop()
	case types.RoleBroker:
		s.handlePeerAnnounce(announce)
	default:
		s.log.Warn().Str("user_type", string(s.role)).Msg("unknown role announced, closing")
	}
}

// handlePeerAnnounce handles an inbound connection from another broker.
// This direction is read-only: the accepted socket only ever carries sync
// records the peer pushes to us. Pushing our own sync records back to that
// peer happens over a connection this broker itself dials, so if we don't
// already hold one, we dial back now, making the link bidirectional out of
// two unidirectional connections.
func (s *session) handlePeerAnnounce(announce types.AnnounceFrame) {
	addr := types.BrokerAddr{IP: announce.IPAddress, Port: announce.PortNumber}
	if s.broker.IsSelf(addr) {
		s.log.Warn().Str("peer", addr.String()).Msg("refusing self peer link")
		return
	}
	if !s.broker.HasPeer(addr) && s.dial != nil {
		s.dial(addr)
	}

	s.name = addr.String()
	s.readPeerFrames(addr)
}

// requestLoop runs the publisher/subscriber side of a session: parse one
// frame per line, dispatch by command, write one response per request.
func (s *session) requestLoop() {
	for {
		raw, err := s.dec.RawFrame()
		if err != nil {
			if err != io.EOF {
				s.log.Debug().Err(err).Msg("session read error")
			}
			return
		}

		var disc wire.Discriminator
		if jsonErr := json.Unmarshal(raw, &disc); jsonErr != nil {
			s.log.Warn().Err(jsonErr).Msg("malformed frame, dropped")
			s.writeInvalid()
			continue
		}

		if disc.Command == "" {
			s.writeInvalid()
			continue
		}

		resp, recognized := s.dispatch(disc.Command, raw)
		if !recognized {
			s.writeInvalid()
			continue
		}
		if err := s.out.send(resp); err != nil {
			s.log.Debug().Err(err).Msg("failed to write response, aborting session")
			return
		}
	}
}

// readPeerFrames drains sync records pushed by addr over an inbound
// connection. Only "sync" commands are meaningful; everything else is
// dropped without a response, since peer links never carry a response
// channel. This connection is not registered in the peer link set — see
// handlePeerAnnounce — so there is nothing to remove here on exit.
func (s *session) readPeerFrames(addr types.BrokerAddr) {
	for {
		var rec types.RequestFrame
		if err := s.dec.ReadFrame(&rec); err != nil {
			if err != io.EOF {
				s.log.Debug().Err(err).Str("peer", addr.String()).Msg("peer link read error")
			}
			return
		}
		if rec.Command != "sync" {
			s.log.Warn().Str("peer", addr.String()).Str("command", rec.Command).
				Msg("non-sync frame on peer link, dropped")
			continue
		}
		s.broker.ApplySync(rec)
	}
}

// dispatch decodes raw into a RequestFrame and invokes the matching
// broker-core operation. ok is false for a command name the broker does
// not recognize, triggering an invalid-command response.
func (s *session) dispatch(command string, raw []byte) (types.ResponseFrame, bool) {
	var req types.RequestFrame
	if err := json.Unmarshal(raw, &req); err != nil {
		s.log.Warn().Err(err).Msg("malformed request frame")
		return types.ResponseFrame{}, false
	}

	switch command {
	case "create":
		resp, _ := s.broker.CreateTopic(req.TopicID, req.TopicName, s.name)
		return resp, true
	case "publish":
		resp, _ := s.broker.PublishMessage(req.TopicID, req.Message, s.name)
		return resp, true
	case "delete":
		resp, _ := s.broker.DeleteTopic(req.TopicID, s.name)
		return resp, true
	case "subscribe":
		resp, _ := s.broker.Subscribe(req.TopicID, s.name)
		return resp, true
	case "unsubscribe":
		resp, _ := s.broker.Unsubscribe(req.TopicID, s.name)
		return resp, true
	case "list":
		return s.broker.ListTopics(), true
	case "countSubscriber":
		return s.broker.CountSubscribers(s.name), true
	case "showCurrentSubscription":
		return s.broker.ShowCurrentSubscription(s.name), true
	default:
		return types.ResponseFrame{}, false
	}
}

func (s *session) writeInvalid() {
	resp := failed(types.ErrInvalidCommand)
	recordResult("invalid", resp)
	if err := s.out.send(resp); err != nil {
		s.log.Debug().Err(err).Msg("failed to write invalid-command response")
	}
}

// disconnect runs the role-appropriate cleanup exactly once per session,
// regardless of which exit path ended the connection.
func (s *session) disconnect() {
	s.state = types.SessionDisconnected
	s.conn.Close()

	switch s.role {
	case types.RoleSubscriber:
		s.broker.OnSubscriberDisconnect(s.name)
	case types.RolePublisher:
		s.broker.OnPublisherDisconnect(s.name)
	}
	s.log.Debug().Msg("session disconnected")
}
