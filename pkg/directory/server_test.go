package directory

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/relay/pkg/types"
	"github.com/cuemby/relay/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*Registry, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	registry := New()
	srv := NewServer(registry, ln)
	go srv.Serve()

	return registry, ln.Addr().String()
}

func roundTrip(t *testing.T, addr string, request interface{}, response interface{}) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.NewEncoder(conn).WriteFrame(request))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, wire.NewDecoder(conn).ReadFrame(response))
}

func TestServerBrokerRegisterReturnsFullList(t *testing.T) {
	_, addr := startTestServer(t)

	var first types.DirectoryRegisterResponse
	roundTrip(t, addr, types.DirectoryRegisterRequest{
		UserType: types.RoleBroker, IP: "10.0.0.1", Port: "9000",
	}, &first)
	assert.Len(t, first.Brokers, 1)

	var second types.DirectoryRegisterResponse
	roundTrip(t, addr, types.DirectoryRegisterRequest{
		UserType: types.RoleBroker, IP: "10.0.0.2", Port: "9000",
	}, &second)
	assert.Len(t, second.Brokers, 2)
}

func TestServerQueryReturnsCurrentList(t *testing.T) {
	registry, addr := startTestServer(t)
	registry.Register(types.BrokerAddr{IP: "10.0.0.1", Port: "9000"})

	var resp types.DirectoryQueryResponse
	roundTrip(t, addr, types.DirectoryQueryRequest{UserType: types.RoleSubscriber}, &resp)
	assert.Len(t, resp.Brokers, 1)
	assert.Equal(t, "10.0.0.1", resp.Brokers[0].IP)
}
