package mqttsn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerRegistry(t *testing.T) {
	addrA := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000}
	addrB := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 2000}

	t.Run("bind and resolve", func(t *testing.T) {
		registry := NewPeerRegistry()

		peer := registry.Bind("c1", addrA, ProtocolV1)
		assert.Equal(t, "c1", peer.ClientID)
		assert.Equal(t, 1, registry.Count())

		byAddr, ok := registry.Resolve(addrA)
		require.True(t, ok)
		assert.Same(t, peer, byAddr)

		byID, ok := registry.ResolveID("c1")
		require.True(t, ok)
		assert.Same(t, peer, byID)
	})

	t.Run("rebind keeps peer identity across addresses", func(t *testing.T) {
		registry := NewPeerRegistry()

		peer := registry.Bind("c1", addrA, ProtocolV1)
		rebound := registry.Bind("c1", addrB, ProtocolV2)

		assert.Same(t, peer, rebound)
		assert.Equal(t, ProtocolV2, peer.Version)

		_, ok := registry.Resolve(addrA)
		assert.False(t, ok)
		byAddr, ok := registry.Resolve(addrB)
		require.True(t, ok)
		assert.Same(t, peer, byAddr)
	})

	t.Run("remove", func(t *testing.T) {
		registry := NewPeerRegistry()

		peer := registry.Bind("c1", addrA, ProtocolV1)
		registry.Remove(peer)

		_, ok := registry.Resolve(addrA)
		assert.False(t, ok)
		_, ok = registry.ResolveID("c1")
		assert.False(t, ok)
		assert.Equal(t, 0, registry.Count())
	})

	t.Run("peers snapshot", func(t *testing.T) {
		registry := NewPeerRegistry()
		registry.Bind("c1", addrA, ProtocolV1)
		registry.Bind("c2", addrB, ProtocolV1)

		assert.Len(t, registry.Peers(), 2)
	})
}

func TestPeerString(t *testing.T) {
	peer := &Peer{ClientID: "c1", Addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000}}
	assert.Contains(t, peer.String(), "c1@")

	var nilPeer *Peer
	assert.Equal(t, "<nil>", nilPeer.String())
}
