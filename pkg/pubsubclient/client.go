// Package pubsubclient is the shared library behind the publisher and
// subscriber CLIs: directory lookup, broker dial/announce, and one
// request/response round trip per command.
package pubsubclient

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"strconv"

	"github.com/cuemby/relay/pkg/relaylog"
	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/rs/zerolog"
)

// MaxMessageBytes is the client-enforced publish size cap; the broker does
// not re-check it.
const MaxMessageBytes = 100

// QueryDirectory asks a directory service at addr for the current broker
// list, announcing as role (publisher or subscriber).
func QueryDirectory(addr string, role types.Role) ([]types.BrokerAddr, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pubsubclient: dial directory: %w", err)
	}
	defer conn.Close()

	req := types.DirectoryQueryRequest{UserType: role}
	if err := wire.NewEncoder(conn).WriteFrame(req); err != nil {
		return nil, fmt.Errorf("pubsubclient: query directory: %w", err)
	}
	var resp types.DirectoryQueryResponse
	if err := wire.NewDecoder(conn).ReadFrame(&resp); err != nil {
		return nil, fmt.Errorf("pubsubclient: read directory response: %w", err)
	}
	return resp.Brokers, nil
}

// PickBroker chooses one broker at random from a directory listing.
func PickBroker(brokers []types.BrokerAddr) (types.BrokerAddr, error) {
	if len(brokers) == 0 {
		return types.BrokerAddr{}, fmt.Errorf("pubsubclient: directory returned no brokers")
	}
	return brokers[rand.Intn(len(brokers))], nil
}

// ValidateTopicID enforces the client-side topic-id syntax rule: the
// publisher must verify the id parses as a signed integer before sending
// it; the broker treats it as an opaque string and does not re-validate.
func ValidateTopicID(id string) error {
	if _, err := strconv.Atoi(id); err != nil {
		return fmt.Errorf("pubsubclient: invalid topic id %q: must be an integer", id)
	}
	return nil
}

// Client is a single long-lived connection to a broker, announced once
// under name and role, used for synchronous request/response commands.
// Publishers use Client directly; subscribers use SubscriberSession
// (subscriber.go) instead, since they must also demultiplex asynchronous
// pushes on the same socket.
type Client struct {
	conn net.Conn
	enc  *wire.Encoder
	dec  *wire.Decoder
	name string
	log  zerolog.Logger
}

// Dial opens a connection to brokerAddr and announces name under role.
func Dial(brokerAddr string, role types.Role, name string) (*Client, error) {
	conn, err := net.Dial("tcp", brokerAddr)
	if err != nil {
		return nil, fmt.Errorf("pubsubclient: dial broker: %w", err)
	}

	c := &Client{
		conn: conn,
		enc:  wire.NewEncoder(conn),
		dec:  wire.NewDecoder(conn),
		name: name,
		log:  relaylog.WithPublisher(relaylog.Component("pubsubclient"), name),
	}
	if err := c.enc.WriteFrame(types.AnnounceFrame{UserType: role, UserName: name}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pubsubclient: announce: %w", err)
	}
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) request(req types.RequestFrame) (types.ResponseFrame, error) {
	if err := c.enc.WriteFrame(req); err != nil {
		return types.ResponseFrame{}, fmt.Errorf("pubsubclient: write request: %w", err)
	}
	var resp types.ResponseFrame
	if err := c.dec.ReadFrame(&resp); err != nil {
		return types.ResponseFrame{}, fmt.Errorf("pubsubclient: read response: %w", err)
	}
	return resp, nil
}

// CreateTopic issues a "create" command.
func (c *Client) CreateTopic(topicID, title string) (types.ResponseFrame, error) {
	return c.request(types.RequestFrame{Command: "create", TopicID: topicID, TopicName: title})
}

// Publish issues a "publish" command, enforcing the client-side message
// size cap before sending.
func (c *Client) Publish(topicID, message string) (types.ResponseFrame, error) {
	if len(message) > MaxMessageBytes {
		return types.ResponseFrame{}, fmt.Errorf("pubsubclient: message exceeds %d byte cap", MaxMessageBytes)
	}
	return c.request(types.RequestFrame{Command: "publish", TopicID: topicID, Message: message})
}

// DeleteTopic issues a "delete" command.
func (c *Client) DeleteTopic(topicID string) (types.ResponseFrame, error) {
	return c.request(types.RequestFrame{Command: "delete", TopicID: topicID})
}

// CountSubscribers issues a "countSubscriber" command.
func (c *Client) CountSubscribers() (types.ResponseFrame, error) {
	return c.request(types.RequestFrame{Command: "countSubscriber"})
}

// decodeMessageType is a small helper shared with subscriber.go for
// sniffing a frame's "message type" field before fully decoding it.
func decodeMessageType(raw []byte) (types.MessageType, error) {
	var disc wire.Discriminator
	if err := json.Unmarshal(raw, &disc); err != nil {
		return "", err
	}
	return types.MessageType(disc.MessageType), nil
}
