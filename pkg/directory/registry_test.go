package directory

import (
	"testing"

	"github.com/cuemby/relay/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAppendsAndReturnsFullList(t *testing.T) {
	r := New()

	first := r.Register(types.BrokerAddr{IP: "10.0.0.1", Port: "9000"})
	require.Len(t, first, 1)

	second := r.Register(types.BrokerAddr{IP: "10.0.0.2", Port: "9000"})
	require.Len(t, second, 2)
	assert.Equal(t, "10.0.0.1", second[0].IP)
	assert.Equal(t, "10.0.0.2", second[1].IP)
}

func TestRegistryQueryReturnsSnapshot(t *testing.T) {
	r := New()
	r.Register(types.BrokerAddr{IP: "10.0.0.1", Port: "9000"})

	snapshot := r.Query()
	require.Len(t, snapshot, 1)

	r.Register(types.BrokerAddr{IP: "10.0.0.2", Port: "9000"})
	assert.Len(t, snapshot, 1, "a snapshot already taken must not observe later registrations")
	assert.Equal(t, 2, r.Count())
}

func TestRegistryReRegistrationDuplicates(t *testing.T) {
	r := New()
	addr := types.BrokerAddr{IP: "10.0.0.1", Port: "9000"}

	r.Register(addr)
	r.Register(addr)

	assert.Equal(t, 2, r.Count(), "the registry is append-only; restart-and-reregister produces a duplicate entry")
}
