package pubsubclient

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/rs/zerolog"
)

// SubscriberSession manages one subscriber's connection to a broker. A
// subscriber socket carries two kinds of frame interleaved: responses to
// commands the subscriber itself issued (subscribe, unsubscribe, list,
// showCurrentSubscription) and asynchronous pushes the broker sends on its
// own schedule (broadcast, deleteNotify). A single receiver goroutine reads
// every frame off the socket and demultiplexes by "message type": push
// frames go straight to OnPush, response-class frames are handed to
// whichever caller is blocked in request() via a condition variable.
//
type SubscriberSession struct {
	conn net.Conn
	enc  *wire.Encoder
	dec  *wire.Decoder
	name string
	log  zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending *types.ResponseFrame
	closed  bool
	readErr error

	// OnPush is invoked from the receiver goroutine for every broadcast or
	// deleteNotify frame. It must not block or call back into the session.
	OnPush func(messageType types.MessageType, raw []byte)
}

// DialSubscriber opens a connection to brokerAddr and announces name as a
// subscriber, then starts the receiver goroutine.
func DialSubscriber(brokerAddr, name string) (*SubscriberSession, error) {
	conn, err := net.Dial("tcp", brokerAddr)
	if err != nil {
		return nil, fmt.Errorf("pubsubclient: dial broker: %w", err)
	}

	s := &SubscriberSession{
		conn: conn,
		enc:  wire.NewEncoder(conn),
		dec:  wire.NewDecoder(conn),
		name: name,
		log:  relaylog.WithSubscriber(relaylog.Component("pubsubclient"), name),
	}
	s.cond = sync.NewCond(&s.mu)

	if err := s.enc.WriteFrame(types.AnnounceFrame{UserType: types.RoleSubscriber, UserName: name}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pubsubclient: announce: %w", err)
	}

	go s.receive()
	return s, nil
}

// Close closes the underlying connection. The receiver goroutine observes
// the resulting read error and unblocks any pending request.
func (s *SubscriberSession) Close() error { return s.conn.Close() }

// receive is the socket's sole reader. It runs until the connection closes
// or a read fails.
func (s *SubscriberSession) receive() {
	for {
		raw, err := s.dec.RawFrame()
		if err != nil {
			s.mu.Lock()
			s.closed = true
			s.readErr = err
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}

		messageType, discErr := decodeMessageType(raw)
		if discErr != nil {
			s.log.Warn().Err(discErr).Msg("malformed frame from broker, dropped")
			continue
		}

		switch messageType {
		case types.MessageBroadcast, types.MessageDeleteNotify:
			if s.OnPush != nil {
				s.OnPush(messageType, raw)
			}
		default:
			var resp types.ResponseFrame
			if err := json.Unmarshal(raw, &resp); err != nil {
				s.log.Warn().Err(err).Msg("malformed response frame, dropped")
				continue
			}
			s.mu.Lock()
			s.pending = &resp
			s.cond.Broadcast()
			s.mu.Unlock()
		}
	}
}

// request writes req and blocks until the receiver goroutine hands back the
// next response-class frame on this socket. Only one request may be in
// flight at a time per session, matching the subscriber CLI's single
// command loop.
func (s *SubscriberSession) request(req types.RequestFrame) (types.ResponseFrame, error) {
	s.mu.Lock()
	if s.closed {
		err := s.readErr
		s.mu.Unlock()
		return types.ResponseFrame{}, fmt.Errorf("pubsubclient: connection closed: %w", err)
	}
	s.mu.Unlock()

	if err := s.enc.WriteFrame(req); err != nil {
		return types.ResponseFrame{}, fmt.Errorf("pubsubclient: write request: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending == nil && !s.closed {
		s.cond.Wait()
	}
	if s.pending == nil {
		return types.ResponseFrame{}, fmt.Errorf("pubsubclient: connection closed: %w", s.readErr)
	}
	resp := *s.pending
	s.pending = nil
	return resp, nil
}

// Subscribe issues a "subscribe" command.
func (s *SubscriberSession) Subscribe(topicID string) (types.ResponseFrame, error) {
	return s.request(types.RequestFrame{Command: "subscribe", TopicID: topicID})
}

// Unsubscribe issues an "unsubscribe" command.
func (s *SubscriberSession) Unsubscribe(topicID string) (types.ResponseFrame, error) {
	return s.request(types.RequestFrame{Command: "unsubscribe", TopicID: topicID})
}

// List issues a "list" command.
func (s *SubscriberSession) List() (types.ResponseFrame, error) {
	return s.request(types.RequestFrame{Command: "list"})
}

// ShowCurrentSubscription issues a "showCurrentSubscription" command.
func (s *SubscriberSession) ShowCurrentSubscription() (types.ResponseFrame, error) {
	return s.request(types.RequestFrame{Command: "showCurrentSubscription"})
}
