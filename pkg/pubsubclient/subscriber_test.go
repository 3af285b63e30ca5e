package pubsubclient

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberSessionRequestResponseRoundTrip(t *testing.T) {
	addr := fakeBroker(t, func(conn net.Conn, announce types.AnnounceFrame) {
		defer conn.Close()
		assert.Equal(t, types.RoleSubscriber, announce.UserType)

		var req types.RequestFrame
		require.NoError(t, wire.NewDecoder(conn).ReadFrame(&req))
		assert.Equal(t, "subscribe", req.Command)

		resp := types.ResponseFrame{Result: "success", Detail: "subscribed"}
		require.NoError(t, wire.NewEncoder(conn).WriteFrame(resp))
	})

	session, err := DialSubscriber(addr, "sub-1")
	require.NoError(t, err)
	defer session.Close()

	resp, err := session.Subscribe("1")
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Result)
}

func TestSubscriberSessionDemuxesPushFromResponse(t *testing.T) {
	addr := fakeBroker(t, func(conn net.Conn, announce types.AnnounceFrame) {
		defer conn.Close()
		enc := wire.NewEncoder(conn)

		// A broadcast push arrives first, unsolicited.
		require.NoError(t, enc.WriteFrame(types.BroadcastFrame{
			MessageType: types.MessageBroadcast,
			Publisher:   "pub-1",
			Title:       "weather",
			TopicID:     "1",
			Message:     "sunny",
		}))

		// Then the subscriber issues a request and expects its response,
		// not the broadcast, to satisfy it.
		var req types.RequestFrame
		require.NoError(t, wire.NewDecoder(conn).ReadFrame(&req))
		assert.Equal(t, "list", req.Command)
		require.NoError(t, enc.WriteFrame(types.ResponseFrame{Result: "success", Detail: "topic list"}))
	})

	session, err := DialSubscriber(addr, "sub-1")
	require.NoError(t, err)
	defer session.Close()

	var mu sync.Mutex
	var pushes []types.MessageType
	pushed := make(chan struct{}, 1)
	session.OnPush = func(messageType types.MessageType, raw []byte) {
		mu.Lock()
		pushes = append(pushes, messageType)
		mu.Unlock()
		pushed <- struct{}{}
	}

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push frame never demuxed to OnPush")
	}

	resp, err := session.List()
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Result)
	assert.Equal(t, "topic list", resp.Detail)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, pushes, 1)
	assert.Equal(t, types.MessageBroadcast, pushes[0])
}

func TestSubscriberSessionRequestAfterCloseErrors(t *testing.T) {
	addr := fakeBroker(t, func(conn net.Conn, announce types.AnnounceFrame) {
		conn.Close()
	})

	session, err := DialSubscriber(addr, "sub-1")
	require.NoError(t, err)

	// Give the receiver goroutine time to observe the broker-side close.
	time.Sleep(50 * time.Millisecond)

	_, err = session.List()
	assert.Error(t, err)
}
