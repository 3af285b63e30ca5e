package pubsubclient

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker accepts exactly one connection, reads the announce frame, then
// hands the connection to handle so a test can script the rest of the
// exchange without starting a real pkg/broker.Broker.
func fakeBroker(t *testing.T, handle func(conn net.Conn, announce types.AnnounceFrame)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		var announce types.AnnounceFrame
		if err := wire.NewDecoder(conn).ReadFrame(&announce); err != nil {
			conn.Close()
			return
		}
		handle(conn, announce)
	}()

	return ln.Addr().String()
}

func TestDialAnnouncesRole(t *testing.T) {
	received := make(chan types.AnnounceFrame, 1)
	addr := fakeBroker(t, func(conn net.Conn, announce types.AnnounceFrame) {
		received <- announce
		conn.Close()
	})

	client, err := Dial(addr, types.RolePublisher, "pub-1")
	require.NoError(t, err)
	defer client.Close()

	select {
	case announce := <-received:
		assert.Equal(t, types.RolePublisher, announce.UserType)
		assert.Equal(t, "pub-1", announce.UserName)
	case <-time.After(time.Second):
		t.Fatal("broker never received an announce frame")
	}
}

func TestClientPublishRejectsOversizedMessage(t *testing.T) {
	addr := fakeBroker(t, func(conn net.Conn, announce types.AnnounceFrame) {
		// never expected to reach here; oversized messages are rejected
		// client-side before any frame is written.
		conn.Close()
	})

	client, err := Dial(addr, types.RolePublisher, "pub-1")
	require.NoError(t, err)
	defer client.Close()

	oversized := make([]byte, MaxMessageBytes+1)
	for i := range oversized {
		oversized[i] = 'a'
	}

	_, err = client.Publish("1", string(oversized))
	assert.Error(t, err)
}

func TestClientRequestRoundTrip(t *testing.T) {
	addr := fakeBroker(t, func(conn net.Conn, announce types.AnnounceFrame) {
		defer conn.Close()
		var req types.RequestFrame
		require.NoError(t, wire.NewDecoder(conn).ReadFrame(&req))
		assert.Equal(t, "create", req.Command)
		assert.Equal(t, "1", req.TopicID)

		resp := types.ResponseFrame{Result: "success", Detail: "topic created"}
		require.NoError(t, wire.NewEncoder(conn).WriteFrame(resp))
	})

	client, err := Dial(addr, types.RolePublisher, "pub-1")
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.CreateTopic("1", "weather updates")
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Result)
}

func TestPickBrokerEmptyListErrors(t *testing.T) {
	_, err := PickBroker(nil)
	assert.Error(t, err)
}

func TestPickBrokerReturnsAMember(t *testing.T) {
	brokers := []types.BrokerAddr{
		{IP: "10.0.0.1", Port: "9000"},
		{IP: "10.0.0.2", Port: "9000"},
	}
	chosen, err := PickBroker(brokers)
	require.NoError(t, err)
	assert.Contains(t, brokers, chosen)
}

func TestValidateTopicID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "positive integer", id: "42", wantErr: false},
		{name: "negative integer", id: "-7", wantErr: false},
		{name: "non-numeric", id: "weather", wantErr: true},
		{name: "empty", id: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
