package mqttsn

import (
	"fmt"
	"net"
	"sync"
)

// Peer identifies a remote MQTT-SN endpoint (client or gateway) by
// client ID and network address. A single canonical Peer exists per
// remote endpoint; peer tables key on the pointer.
type Peer struct {
	// ClientID is the remote endpoint's client identifier.
	ClientID string

	// Addr is the remote network address.
	Addr net.Addr

	// Version is the negotiated protocol version.
	Version ProtocolVersion
}

// String returns a printable identity for logging.
func (p *Peer) String() string {
	if p == nil {
		return "<nil>"
	}
	if p.Addr != nil {
		return fmt.Sprintf("%s@%s", p.ClientID, p.Addr)
	}
	return p.ClientID
}

// PeerRegistry resolves network addresses to canonical Peer instances.
type PeerRegistry struct {
	mu      sync.RWMutex
	byAddr  map[string]*Peer
	byID    map[string]*Peer
}

// NewPeerRegistry creates an empty peer registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		byAddr: make(map[string]*Peer),
		byID:   make(map[string]*Peer),
	}
}

// Resolve returns the canonical peer for an address, if known.
func (r *PeerRegistry) Resolve(addr net.Addr) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byAddr[addr.String()]
	return p, ok
}

// ResolveID returns the canonical peer for a client ID, if known.
func (r *PeerRegistry) ResolveID(clientID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[clientID]
	return p, ok
}

// Bind creates or rebinds the canonical peer for a client ID at the
// given address. A client reconnecting from a new address keeps its
// peer identity; the old address mapping is dropped.
func (r *PeerRegistry) Bind(clientID string, addr net.Addr, version ProtocolVersion) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byID[clientID]; ok {
		if p.Addr != nil {
			delete(r.byAddr, p.Addr.String())
		}
		p.Addr = addr
		p.Version = version
		r.byAddr[addr.String()] = p
		return p
	}

	p := &Peer{ClientID: clientID, Addr: addr, Version: version}
	r.byID[clientID] = p
	r.byAddr[addr.String()] = p
	return p
}

// Remove drops a peer from the registry.
func (r *PeerRegistry) Remove(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, p.ClientID)
	if p.Addr != nil {
		delete(r.byAddr, p.Addr.String())
	}
}

// Peers returns a snapshot of all known peers.
func (r *PeerRegistry) Peers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Peer, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

// Count returns the number of known peers.
func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
